// Package broadcast fans published state snapshots out to live subscription
// sessions, one named topic per entity kind.
//
// The router is a constructed component: callers build one with the topics
// they need and inject it wherever publications originate, so independent
// instances stay testable in isolation.
package broadcast

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// sessionQueueDepth bounds the per-session delivery queue. Publications are
// full snapshots, so when a slow consumer falls behind the oldest pending
// snapshot is dropped in favor of the newest one.
const sessionQueueDepth = 16

var (
	// ErrTopicUnknown indicates the topic was not registered at construction.
	ErrTopicUnknown = errors.New("broadcast topic is not registered")
	// ErrRouterClosed indicates the router has shut down.
	ErrRouterClosed = errors.New("broadcast router is closed")
)

// Publication is one delivered payload with its per-topic sequence number.
type Publication struct {
	Topic   string
	Seq     uint64
	Payload any
}

// Router delivers every published payload to all sessions subscribed to the
// payload's topic. Publications on a single topic reach every session in the
// order they were issued.
type Router struct {
	mu     sync.Mutex
	topics map[string]*topicState
	closed bool
}

type topicState struct {
	mu       sync.Mutex
	name     string
	nextSeq  uint64
	sessions map[*Session]struct{}
}

// NewRouter creates a router with a fixed set of topics. Publishing or
// subscribing to any other topic fails.
func NewRouter(topics ...string) *Router {
	registry := make(map[string]*topicState, len(topics))
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		if _, exists := registry[topic]; exists {
			continue
		}
		registry[topic] = &topicState{
			name:     topic,
			sessions: make(map[*Session]struct{}),
		}
	}
	return &Router{topics: registry}
}

// Subscribe registers a new session on topic. The session receives every
// publication issued after this call and nothing issued before it.
func (r *Router) Subscribe(topic string) (*Session, error) {
	if r == nil {
		return nil, ErrRouterClosed
	}
	state, err := r.topic(topic)
	if err != nil {
		return nil, err
	}

	session := &Session{
		topic:   state.name,
		state:   SessionPending,
		updates: make(chan Publication, sessionQueueDepth),
		detach: func(s *Session) {
			state.mu.Lock()
			delete(state.sessions, s)
			state.mu.Unlock()
		},
	}

	state.mu.Lock()
	state.sessions[session] = struct{}{}
	state.mu.Unlock()
	return session, nil
}

// Publish delivers payload to every session currently subscribed to topic.
// Delivery never blocks on a slow session.
func (r *Router) Publish(topic string, payload any) error {
	if r == nil {
		return ErrRouterClosed
	}
	state, err := r.topic(topic)
	if err != nil {
		return err
	}

	// Sequencing and delivery happen under the topic lock so concurrent
	// publishers cannot interleave deliveries across sessions.
	state.mu.Lock()
	defer state.mu.Unlock()

	state.nextSeq++
	publication := Publication{
		Topic:   state.name,
		Seq:     state.nextSeq,
		Payload: payload,
	}
	for session := range state.sessions {
		session.deliver(publication)
	}
	return nil
}

// Close shuts the router down and closes every open session. It is safe to
// call more than once.
func (r *Router) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	for _, state := range r.topics {
		state.mu.Lock()
		sessions := make([]*Session, 0, len(state.sessions))
		for session := range state.sessions {
			sessions = append(sessions, session)
		}
		state.mu.Unlock()
		for _, session := range sessions {
			session.Close()
		}
	}
}

func (r *Router) topic(topic string) (*topicState, error) {
	topic = strings.TrimSpace(topic)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRouterClosed
	}
	state, ok := r.topics[topic]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTopicUnknown, topic)
	}
	return state, nil
}
