package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrNoSession is returned when none of a recipient's aliases has a
// live websocket attached.
var ErrNoSession = errors.New("no websocket session")

type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// WSRegistry holds live websocket sessions keyed by alias. Drivers and
// riders attach under any of their aliases; publishing walks all of a
// recipient's aliases and delivers to whichever has a session.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*wsSession
}

func NewWSRegistry() *WSRegistry {
	return &WSRegistry{sessions: make(map[string]*wsSession)}
}

func (r *WSRegistry) Add(alias string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[alias] = &wsSession{conn: conn}
}

func (r *WSRegistry) Remove(alias string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, alias)
}

func (r *WSRegistry) Publish(ctx context.Context, to Recipient, event string, payload any) error {
	msg := map[string]any{"event": event, "payload": payload}
	var lastErr error = ErrNoSession
	delivered := false
	for _, alias := range to.Aliases {
		r.mu.RLock()
		s, ok := r.sessions[alias]
		r.mu.RUnlock()
		if !ok {
			continue
		}
		if err := s.send(msg); err != nil {
			lastErr = err
			continue
		}
		delivered = true
	}
	if delivered {
		return nil
	}
	return lastErr
}
