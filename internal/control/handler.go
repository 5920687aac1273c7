package control

import (
	"errors"
	"fmt"
	"image"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/lanshare/lanshare/internal/input"
	"github.com/lanshare/lanshare/internal/logging"
)

// DefaultTapDelay is the pause between press and release of a tapped key
const DefaultTapDelay = 5 * time.Millisecond

// Geometry returns the screen rectangle normalized coordinates map onto
type Geometry func() image.Rectangle

// HandlerOptions tunes a Handler
type HandlerOptions struct {
	// Native is tried first for arrow and Win/Super keys
	Native input.NativeKeyer
	// TapDelay defaults to DefaultTapDelay; negative disables the pause
	TapDelay time.Duration
}

// Handler executes mouse and key messages for one connection. It tracks
// the modifiers this connection holds so a combo never releases a modifier
// it did not press itself.
type Handler struct {
	injector input.Injector
	native   input.NativeKeyer
	geometry Geometry
	tapDelay time.Duration

	mu   sync.Mutex
	held map[string]bool
}

// NewHandler creates a handler. geometry may be nil, in which case a
// 1920x1080 screen at the origin is assumed.
func NewHandler(injector input.Injector, geometry Geometry, opts HandlerOptions) *Handler {
	if geometry == nil {
		geometry = func() image.Rectangle { return image.Rect(0, 0, 1920, 1080) }
	}
	if opts.TapDelay < 0 {
		opts.TapDelay = 0
	} else if opts.TapDelay == 0 {
		opts.TapDelay = DefaultTapDelay
	}
	return &Handler{
		injector: injector,
		native:   opts.Native,
		geometry: geometry,
		tapDelay: opts.TapDelay,
		held:     make(map[string]bool),
	}
}

// Execute runs a mouse or key message against the injector
func (h *Handler) Execute(msg Message) error {
	switch m := msg.(type) {
	case *Mouse:
		return h.mouse(m)
	case *Key:
		return h.key(m)
	default:
		return fmt.Errorf("control: %s is not an input message", msg.Type())
	}
}

// HeldModifiers returns the modifiers currently pressed through this handler
func (h *Handler) HeldModifiers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.heldLocked()
}

func (h *Handler) heldLocked() []string {
	out := make([]string, 0, len(h.held))
	for k := range h.held {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ReleaseAll releases every modifier still held; used when the connection drops
func (h *Handler) ReleaseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, k := range h.heldLocked() {
		if err := h.keyAction(k, input.Release); err != nil {
			log.Printf("[WARN] control: release of held %s failed: %v", k, err)
		}
		delete(h.held, k)
	}
}

// Point maps normalized coordinates onto the current screen geometry
func (h *Handler) Point(x, y float64) (int, int) {
	return scale(h.geometry(), x, y)
}

func scale(r image.Rectangle, x, y float64) (int, int) {
	return r.Min.X + axis(x, r.Dx()), r.Min.Y + axis(y, r.Dy())
}

func axis(v float64, size int) int {
	if size <= 0 || v <= 0 {
		return 0
	}
	p := int(v * float64(size))
	if p >= size {
		p = size - 1
	}
	return p
}

func (h *Handler) mouse(m *Mouse) error {
	if m.Action == MouseScroll {
		return h.injector.Scroll(m.DX, m.DY)
	}

	if m.HasPos {
		px, py := h.Point(m.X, m.Y)
		if err := h.injector.Move(px, py); err != nil {
			return fmt.Errorf("move to %d,%d: %w", px, py, err)
		}
	}

	switch m.Action {
	case MousePress:
		return h.injector.Click(m.Button, input.Press)
	case MouseRelease:
		return h.injector.Click(m.Button, input.Release)
	}
	return nil
}

func (h *Handler) key(k *Key) error {
	logging.InputDebugf("recv key action=%s key=%q keys=%v", k.Action, k.Key, k.Keys)

	h.mu.Lock()
	defer h.mu.Unlock()

	if k.Action == KeyCombo {
		return h.combo(k.Keys)
	}

	action := input.Press
	if k.Action == KeyRelease {
		action = input.Release
	}

	var errs []error
	for _, raw := range k.Names() {
		name := NormalizeKey(raw)
		if name == "" {
			continue
		}
		if IsModifier(name) {
			if action == input.Press && h.held[name] {
				logging.InputDebugf("%s already held, skipping press", name)
				continue
			}
			if action == input.Release && !h.held[name] {
				logging.InputDebugf("%s not held by this connection, skipping release", name)
				continue
			}
		}
		if err := h.keyAction(name, action); err != nil {
			log.Printf("[WARN] control: key %s %s failed: %v", name, action, err)
			errs = append(errs, err)
			continue
		}
		if IsModifier(name) {
			if action == input.Press {
				h.held[name] = true
			} else {
				delete(h.held, name)
			}
		}
	}
	return errors.Join(errs...)
}

// combo presses the modifiers not yet held, taps every main key in order,
// then releases only the modifiers it pressed, in reverse order.
func (h *Handler) combo(keys []string) error {
	var mods, mains []string
	for _, raw := range keys {
		name := NormalizeKey(raw)
		switch {
		case name == "":
		case IsModifier(name):
			mods = append(mods, name)
		default:
			mains = append(mains, name)
		}
	}
	logging.InputDebugf("combo mods=%v mains=%v held=%v", mods, mains, h.heldLocked())

	var errs []error
	var pressedNow []string
	for _, m := range mods {
		if h.held[m] {
			continue
		}
		if err := h.keyAction(m, input.Press); err != nil {
			log.Printf("[WARN] control: combo press of modifier %s failed: %v", m, err)
			errs = append(errs, err)
			continue
		}
		h.held[m] = true
		pressedNow = append(pressedNow, m)
	}

	for _, k := range mains {
		if err := h.tap(k); err != nil {
			log.Printf("[WARN] control: combo key %s failed: %v", k, err)
			errs = append(errs, err)
		}
	}

	for i := len(pressedNow) - 1; i >= 0; i-- {
		m := pressedNow[i]
		if err := h.keyAction(m, input.Release); err != nil {
			log.Printf("[WARN] control: combo release of modifier %s failed: %v", m, err)
			errs = append(errs, err)
		}
		delete(h.held, m)
	}
	return errors.Join(errs...)
}

func (h *Handler) tap(name string) error {
	if hasNativePath(name) && h.native != nil && h.native.Key(name, input.Press) {
		h.pause()
		h.native.Key(name, input.Release)
		logging.InputDebugf("%s tapped natively", name)
		return nil
	}
	if err := h.injector.Key(name, input.Press); err != nil {
		return err
	}
	h.pause()
	return h.injector.Key(name, input.Release)
}

func (h *Handler) keyAction(name string, action input.Action) error {
	if hasNativePath(name) && h.native != nil && h.native.Key(name, action) {
		logging.InputDebugf("%s %s sent natively", name, action)
		return nil
	}
	return h.injector.Key(name, action)
}

func (h *Handler) pause() {
	if h.tapDelay > 0 {
		time.Sleep(h.tapDelay)
	}
}
