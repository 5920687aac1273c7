package server

import (
	"github.com/lanshare/lanshare/internal/session"
)

// Observer is notified of server events. Calls come from server goroutines
// and must not block.
type Observer interface {
	OnClientConnected(s session.Session)
	// OnClientDisconnected fires exactly once per connection
	OnClientDisconnected(s session.Session)
	OnStatus(msg string)
	OnError(err error)
}

// NopObserver ignores every event
type NopObserver struct{}

func (NopObserver) OnClientConnected(session.Session)    {}
func (NopObserver) OnClientDisconnected(session.Session) {}
func (NopObserver) OnStatus(string)                      {}
func (NopObserver) OnError(error)                        {}
