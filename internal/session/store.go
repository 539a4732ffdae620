// Package session holds the process-wide client session and fans out every
// committed change to its subscribers.
//
// The read side (Store) is handed to UI consumers. The write side
// (Committer) is handed only to auth actions.
package session

import (
	"log/slog"
	"sync"

	"github.com/sumire/arena/internal/domain"
)

// Listener receives every committed session.
type Listener func(domain.Session)

type subscriber struct {
	id int
	fn Listener
}

// Store holds exactly one Session value.
type Store struct {
	mu          sync.Mutex
	current     domain.Session
	subs        []subscriber
	nextID      int
	pending     []domain.Session
	dispatching bool
	logger      *slog.Logger
}

// NewStore creates a store in the INIT state together with its write handle.
func NewStore(logger *slog.Logger) (*Store, *Committer) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{current: domain.NewSession(), logger: logger}
	return s, &Committer{store: s}
}

// Current returns a copy of the current session.
func (s *Store) Current() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Subscribe registers fn and returns a function that removes it.
// Listeners are called in subscription order.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// publish queues next for delivery and drains the queue unless another
// caller is already delivering. Must be called with s.mu held; returns
// with it released.
func (s *Store) publish(next domain.Session) {
	s.pending = append(s.pending, next)
	if s.dispatching {
		s.mu.Unlock()
		return
	}
	s.dispatching = true

	for len(s.pending) > 0 {
		snap := s.pending[0]
		s.pending = s.pending[1:]
		subs := make([]subscriber, len(s.subs))
		copy(subs, s.subs)
		s.mu.Unlock()

		for _, sub := range subs {
			sub.fn(snap.Clone())
		}

		s.mu.Lock()
	}
	s.dispatching = false
	s.mu.Unlock()
}
