package client

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"

	"github.com/lanshare/lanshare/internal/app"
	"github.com/lanshare/lanshare/internal/codec"
	"github.com/lanshare/lanshare/internal/control"
)

// ErrScreenExists is returned when adding a screen id twice
var ErrScreenExists = errors.New("client: screen already connected")

// PoolObserver receives events for every screen in a Pool
type PoolObserver interface {
	OnScreenFrame(screenID string, f codec.Frame)
	OnScreenState(screenID string, state control.StreamState)
	OnScreenRemoved(screenID string)
}

// Pool keeps one Client per remote screen
type Pool struct {
	opts     Options
	appCtx   *app.Context
	observer PoolObserver

	mu      sync.Mutex
	clients map[string]*Client
}

// NewPool creates a pool. appCtx may be nil; when set, connected screens are
// recorded there and the logged-in user is sent on registration.
func NewPool(opts Options, appCtx *app.Context, observer PoolObserver) *Pool {
	return &Pool{
		opts:     opts,
		appCtx:   appCtx,
		observer: observer,
		clients:  make(map[string]*Client),
	}
}

// Add connects to server under screenID
func (p *Pool) Add(ctx context.Context, screenID, server string) error {
	p.mu.Lock()
	if _, ok := p.clients[screenID]; ok {
		p.mu.Unlock()
		return ErrScreenExists
	}
	p.mu.Unlock()

	opts := p.opts
	if opts.Username == "" && p.appCtx != nil {
		opts.Username, _ = p.appCtx.User()
	}
	opts.Observer = &screenObserver{pool: p, id: screenID}

	c, err := Connect(ctx, server, opts)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if _, ok := p.clients[screenID]; ok {
		p.mu.Unlock()
		c.Close()
		return ErrScreenExists
	}
	p.clients[screenID] = c
	p.mu.Unlock()

	if p.appCtx != nil {
		p.appCtx.AddScreen(app.Screen{ID: screenID, Addr: c.Server()})
	}
	log.Printf("[INFO] client: screen %s added (%s)", screenID, c.Server())
	return nil
}

// Remove disconnects a screen and reports whether it existed
func (p *Pool) Remove(screenID string) bool {
	c, ok := p.take(screenID)
	if !ok {
		return false
	}
	c.Close()
	return true
}

// Get returns the client for a screen
func (p *Pool) Get(screenID string) (*Client, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.clients[screenID]
	return c, ok
}

// IDs returns the connected screen ids, sorted
func (p *Pool) IDs() []string {
	p.mu.Lock()
	ids := make([]string, 0, len(p.clients))
	for id := range p.clients {
		ids = append(ids, id)
	}
	p.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// CloseAll disconnects every screen
func (p *Pool) CloseAll() {
	for _, id := range p.IDs() {
		p.Remove(id)
	}
}

// take removes a screen from the pool exactly once
func (p *Pool) take(screenID string) (*Client, bool) {
	p.mu.Lock()
	c, ok := p.clients[screenID]
	delete(p.clients, screenID)
	p.mu.Unlock()

	if !ok {
		return nil, false
	}
	if p.appCtx != nil {
		p.appCtx.RemoveScreen(screenID)
	}
	if p.observer != nil {
		p.observer.OnScreenRemoved(screenID)
	}
	log.Printf("[INFO] client: screen %s removed", screenID)
	return c, true
}

// screenObserver routes one client's events to the pool
type screenObserver struct {
	pool *Pool
	id   string
}

func (o *screenObserver) OnFrame(f codec.Frame) {
	if o.pool.observer != nil {
		o.pool.observer.OnScreenFrame(o.id, f)
	}
}

func (o *screenObserver) OnStreamState(state control.StreamState) {
	if o.pool.observer != nil {
		o.pool.observer.OnScreenState(o.id, state)
	}
}

func (o *screenObserver) OnDisconnected(err error) {
	if err == nil {
		return
	}
	// The server went away; drop the screen without waiting on the
	// goroutine this callback runs on.
	o.pool.take(o.id)
}
