package session

import (
	"log/slog"
	"sync"

	"github.com/sumire/arena/internal/domain"
)

// Transition computes the next session from the current one. Returning
// false leaves the session untouched.
type Transition func(cur domain.Session) (next domain.Session, commit bool, err error)

// Committer is the single write entry point into a Store. Transitions are
// serialized by the committer's own lock, so a transition may do slow work
// such as storage I/O without blocking readers of the store.
type Committer struct {
	mu    sync.Mutex
	store *Store
}

// Store returns the read side this committer writes to.
func (c *Committer) Store() *Store { return c.store }

// Update applies t atomically with respect to other updates. Readers keep
// seeing the previous session until the candidate is validated and
// published.
func (c *Committer) Update(t Transition) (domain.Session, error) {
	s := c.store
	c.mu.Lock()

	next, commit, err := t(s.Current())
	if err != nil || !commit {
		c.mu.Unlock()
		return s.Current(), err
	}
	if err := next.Validate(); err != nil {
		c.mu.Unlock()
		cur := s.Current()
		s.logger.Error("session commit refused",
			slog.String("from", string(cur.Status)),
			slog.String("to", string(next.Status)),
			slog.Any("error", err),
		)
		return cur, err
	}

	s.mu.Lock()
	from := s.current.Status
	s.current = next.Clone()
	// Released before publish so a listener may commit; the store lock is
	// still held, which keeps the delivery queue in commit order.
	c.mu.Unlock()

	s.logger.Debug("session committed",
		slog.String("from", string(from)),
		slog.String("to", string(next.Status)),
		slog.Uint64("generation", next.Generation),
	)
	s.publish(next)
	return next.Clone(), nil
}

// CommitAt applies t only if the session is still at generation gen.
// A stale result is dropped and reported with stale=true.
func (c *Committer) CommitAt(gen uint64, t Transition) (next domain.Session, stale bool, err error) {
	next, err = c.Update(func(cur domain.Session) (domain.Session, bool, error) {
		if cur.Generation != gen {
			stale = true
			return cur, false, nil
		}
		return t(cur)
	})
	if stale {
		c.store.logger.Debug("stale session result dropped",
			slog.Uint64("issued_at", gen),
			slog.Uint64("current", next.Generation),
		)
	}
	return next, stale, err
}
