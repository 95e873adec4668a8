package realtime

import "sync"

// conn is the slice of *websocket.Conn the session needs; an interface so
// tests can fake the transport.
type conn interface {
	WriteJSON(v any) error
	Close() error
}

// Session adapts one websocket connection into a Subscriber. Writes are
// serialized with a mutex because gorilla conns allow one writer at a time.
type Session struct {
	conn conn
	mu   sync.Mutex
}

func NewSession(c conn) *Session {
	return &Session{conn: c}
}

func (s *Session) Deliver(topic string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(msg)
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}
