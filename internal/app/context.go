// Package app holds the state shared by the viewer side of the CLI: who is
// logged in and which screens are connected. It is passed explicitly to the
// components that need it.
package app

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrInvalidUser is returned by Login for an empty username
var ErrInvalidUser = errors.New("app: username must not be empty")

// Screen is one remote screen the viewer is connected to
type Screen struct {
	ID          string    `json:"id"`
	Addr        string    `json:"addr"`
	Name        string    `json:"name,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Context is the viewer application state
type Context struct {
	mu         sync.RWMutex
	user       string
	loggedInAt time.Time
	screens    map[string]Screen
}

// New creates a logged-out context
func New() *Context {
	return &Context{screens: make(map[string]Screen)}
}

// Login sets the current user
func (c *Context) Login(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return ErrInvalidUser
	}
	c.mu.Lock()
	c.user = username
	c.loggedInAt = time.Now()
	c.mu.Unlock()
	return nil
}

// Logout clears the user and forgets every screen. It returns the screens
// that were connected so the caller can close them.
func (c *Context) Logout() []Screen {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.sortedLocked()
	c.user = ""
	c.loggedInAt = time.Time{}
	c.screens = make(map[string]Screen)
	return out
}

// User returns the current username
func (c *Context) User() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user, c.user != ""
}

// LoggedIn reports whether a user is set
func (c *Context) LoggedIn() bool {
	_, ok := c.User()
	return ok
}

// AddScreen records a connected screen, replacing one with the same id
func (c *Context) AddScreen(s Screen) {
	if s.ConnectedAt.IsZero() {
		s.ConnectedAt = time.Now()
	}
	c.mu.Lock()
	c.screens[s.ID] = s
	c.mu.Unlock()
}

// RemoveScreen forgets a screen and reports whether it was known
func (c *Context) RemoveScreen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.screens[id]
	delete(c.screens, id)
	return ok
}

// Screens returns the connected screens ordered by id
func (c *Context) Screens() []Screen {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sortedLocked()
}

func (c *Context) sortedLocked() []Screen {
	out := make([]Screen, 0, len(c.screens))
	for _, s := range c.screens {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
