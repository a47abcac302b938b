package pollserver

import (
	"sync"
	"time"

	"github.com/vinayprograms/pollsock/errors"
	"github.com/vinayprograms/pollsock/packet"
)

// Session is one client connection as the server sees it.
type Session struct {
	id string

	mu         sync.Mutex
	outbox     []packet.Packet
	closed     bool
	polling    bool
	lastActive time.Time

	wake chan struct{}
}

func newSession(id string) *Session {
	return &Session{
		id:         id,
		lastActive: time.Now(),
		wake:       make(chan struct{}, 1),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Send queues a message for the client's next receive.
func (s *Session) Send(data string) error {
	return s.push(packet.Packet{Type: packet.Message, Data: data})
}

// Ping queues a ping. The client answers with a pong carrying the same data.
func (s *Session) Ping(data string) error {
	return s.push(packet.Packet{Type: packet.Ping, Data: data})
}

// Close queues a close packet. The session is dropped once the client
// has received it. Closing twice is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.outbox = append(s.outbox, packet.Packet{Type: packet.Close})
	s.signal()
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) push(p packet.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.InvalidState("session closed")
	}
	s.outbox = append(s.outbox, p)
	s.signal()
	return nil
}

func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// drain takes everything queued. final is set when the batch ends the
// session.
func (s *Session) drain() (ps []packet.Packet, final bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, s.outbox = s.outbox, nil
	return ps, s.closed && len(ps) > 0
}

// beginPoll marks a receive as in progress. Only one may run at a time.
func (s *Session) beginPoll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.polling {
		return false
	}
	s.polling = true
	s.lastActive = time.Now()
	return true
}

func (s *Session) endPoll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polling = false
	s.lastActive = time.Now()
}

func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
}

// idleSince reports whether the session has been inactive since t and has
// no receive in progress.
func (s *Session) idleSince(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.polling && s.lastActive.Before(t)
}
