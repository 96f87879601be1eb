// Package progress tracks long-running processing runs and fans their
// state updates out to any number of live listeners. The latest state is
// always retained per token, so a poller and an event stream see the same
// information regardless of when they attach.
package progress

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"
)

// Run statuses reported over the status endpoint and event stream.
const (
	StatusProcessing = "processing"
	StatusComplete   = "complete"
	StatusError      = "error"
)

// Event is one progress snapshot for a processing run.
type Event struct {
	Status          string   `json:"status"`
	CurrentSession  string   `json:"current_session,omitempty"`
	TotalSessions   int      `json:"total_sessions"`
	SessionsCreated []string `json:"sessions_created"`
	SkippedSessions []string `json:"skipped_sessions,omitempty"`
	Message         string   `json:"message,omitempty"`
}

// Store holds the latest state per run token plus live subscribers.
type Store struct {
	mu     sync.Mutex
	states map[string]Event
	subs   map[string]map[string]chan Event
}

func NewStore() *Store {
	return &Store{
		states: make(map[string]Event),
		subs:   make(map[string]map[string]chan Event),
	}
}

// Get returns the latest state for a run token.
func (s *Store) Get(token string) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.states[token]
	return ev, ok
}

// Set records the latest state for a run token and broadcasts it to
// subscribers. Slow subscribers are skipped so the processing loop never
// blocks on a stalled listener.
func (s *Store) Set(token string, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[token] = ev
	for _, ch := range s.subs[token] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Delete drops a run's state and closes any remaining subscriber channels.
func (s *Store) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, token)
	for _, ch := range s.subs[token] {
		close(ch)
	}
	delete(s.subs, token)
}

// Subscribe creates a channel receiving state updates for a run token. The
// returned id is passed to Unsubscribe when the listener detaches.
func (s *Store) Subscribe(token string) (string, chan Event) {
	id := randomID()
	ch := make(chan Event, 16)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[token] == nil {
		s.subs[token] = make(map[string]chan Event)
	}
	s.subs[token][id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from a run token.
func (s *Store) Unsubscribe(token, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[token][id]; ok {
		close(ch)
		delete(s.subs[token], id)
	}
	if len(s.subs[token]) == 0 {
		delete(s.subs, token)
	}
}

// randomID generates a random subscriber ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}
