package broadcast

import "sync"

// SessionState identifies one subscription lifecycle state.
type SessionState string

const (
	// SessionPending means the session is registered but has not received a
	// publication yet.
	SessionPending SessionState = "pending"
	// SessionActive means at least one publication has been delivered.
	SessionActive SessionState = "active"
	// SessionClosed is terminal: no further delivery, resources released.
	SessionClosed SessionState = "closed"
)

// Session is one long-lived topic registration. It receives every publication
// issued on its topic between Subscribe and Close.
type Session struct {
	topic  string
	detach func(*Session)

	mu      sync.Mutex
	state   SessionState
	updates chan Publication
}

// Topic returns the topic this session is subscribed to.
func (s *Session) Topic() string {
	if s == nil {
		return ""
	}
	return s.topic
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	if s == nil {
		return SessionClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Updates returns the delivery channel. The channel is closed exactly once
// when the session closes; it never terminates otherwise.
func (s *Session) Updates() <-chan Publication {
	if s == nil {
		return nil
	}
	return s.updates
}

// Close detaches the session from its topic and closes the delivery channel.
// Closing twice is a no-op, and a publish racing with Close is safe.
func (s *Session) Close() {
	if s == nil {
		return
	}
	if s.detach != nil {
		s.detach(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionClosed {
		return
	}
	s.state = SessionClosed
	close(s.updates)
}

// deliver enqueues one publication without blocking. When the queue is full
// the oldest pending publication is evicted; payloads are full snapshots, so
// the newest one always supersedes what it displaced.
func (s *Session) deliver(publication Publication) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionClosed {
		return
	}
	if s.state == SessionPending {
		s.state = SessionActive
	}
	for {
		select {
		case s.updates <- publication:
			return
		default:
		}
		select {
		case <-s.updates:
		default:
		}
	}
}
