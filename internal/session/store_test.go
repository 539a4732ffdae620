package session_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/arena/internal/domain"
	"github.com/sumire/arena/internal/session"
)

func to(status domain.Status) session.Transition {
	return func(cur domain.Session) (domain.Session, bool, error) {
		return domain.Session{Status: status, Generation: cur.Generation + 1}, true, nil
	}
}

func TestStore_StartsInInit(t *testing.T) {
	store, _ := session.NewStore(nil)
	assert.Equal(t, domain.StatusInit, store.Current().Status)
}

func TestStore_NotifiesInSubscriptionOrder(t *testing.T) {
	store, commit := session.NewStore(nil)

	var order []string
	store.Subscribe(func(domain.Session) { order = append(order, "first") })
	store.Subscribe(func(domain.Session) { order = append(order, "second") })
	store.Subscribe(func(domain.Session) { order = append(order, "third") })

	_, err := commit.Update(to(domain.StatusUnauthenticated))
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestStore_Unsubscribe(t *testing.T) {
	store, commit := session.NewStore(nil)

	calls := 0
	unsubscribe := store.Subscribe(func(domain.Session) { calls++ })
	_, err := commit.Update(to(domain.StatusUnauthenticated))
	require.NoError(t, err)

	unsubscribe()
	unsubscribe()
	_, err = commit.Update(to(domain.StatusLoading))
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

func TestStore_RefusesInvalidSession(t *testing.T) {
	store, commit := session.NewStore(nil)

	notified := false
	store.Subscribe(func(domain.Session) { notified = true })

	_, err := commit.Update(func(cur domain.Session) (domain.Session, bool, error) {
		return domain.Session{Status: domain.StatusAuthenticated}, true, nil
	})

	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.False(t, notified)
	assert.Equal(t, domain.StatusInit, store.Current().Status)
}

func TestStore_SkipWithoutCommit(t *testing.T) {
	store, commit := session.NewStore(nil)

	notified := false
	store.Subscribe(func(domain.Session) { notified = true })

	_, err := commit.Update(func(cur domain.Session) (domain.Session, bool, error) {
		return cur, false, nil
	})
	require.NoError(t, err)
	assert.False(t, notified)
}

func TestStore_CurrentIsACopy(t *testing.T) {
	store, commit := session.NewStore(nil)
	_, err := commit.Update(func(cur domain.Session) (domain.Session, bool, error) {
		return domain.Session{
			Status: domain.StatusOnboardingRequired,
			User:   &domain.User{ID: 1, DisplayName: "Ada"},
		}, true, nil
	})
	require.NoError(t, err)

	s := store.Current()
	s.User.DisplayName = "mutated"

	assert.Equal(t, "Ada", store.Current().User.DisplayName)
}

func TestCommitter_CommitAtDropsStaleGeneration(t *testing.T) {
	store, commit := session.NewStore(nil)

	started, err := commit.Update(to(domain.StatusLoading))
	require.NoError(t, err)

	_, err = commit.Update(to(domain.StatusUnauthenticated))
	require.NoError(t, err)

	_, stale, err := commit.CommitAt(started.Generation, func(cur domain.Session) (domain.Session, bool, error) {
		return domain.Session{
			Status:     domain.StatusOnboardingRequired,
			User:       &domain.User{ID: 1},
			Generation: cur.Generation,
		}, true, nil
	})
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, domain.StatusUnauthenticated, store.Current().Status)
}

func TestCommitter_CommitAtCurrentGeneration(t *testing.T) {
	store, commit := session.NewStore(nil)

	started, err := commit.Update(to(domain.StatusLoading))
	require.NoError(t, err)

	_, stale, err := commit.CommitAt(started.Generation, func(cur domain.Session) (domain.Session, bool, error) {
		return domain.Session{Status: domain.StatusUnauthenticated, Generation: cur.Generation}, true, nil
	})
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, domain.StatusUnauthenticated, store.Current().Status)
}

func TestStore_CommitFromListenerIsDeliveredAfterCurrentRound(t *testing.T) {
	store, commit := session.NewStore(nil)

	var seen []string
	store.Subscribe(func(s domain.Session) {
		seen = append(seen, "a:"+string(s.Status))
		if s.Status == domain.StatusLoading {
			_, err := commit.Update(to(domain.StatusUnauthenticated))
			assert.NoError(t, err)
		}
	})
	store.Subscribe(func(s domain.Session) {
		seen = append(seen, "b:"+string(s.Status))
	})

	_, err := commit.Update(to(domain.StatusLoading))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"a:LOADING", "b:LOADING",
		"a:UNAUTHENTICATED", "b:UNAUTHENTICATED",
	}, seen)
}

func TestStore_ConcurrentCommitsAreDeliveredInOrder(t *testing.T) {
	store, commit := session.NewStore(nil)

	var mu sync.Mutex
	var gens []uint64
	store.Subscribe(func(s domain.Session) {
		mu.Lock()
		gens = append(gens, s.Generation)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := commit.Update(to(domain.StatusUnauthenticated))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, gens, 50)
	for i := 1; i < len(gens); i++ {
		assert.Less(t, gens[i-1], gens[i])
	}
	assert.Equal(t, uint64(50), store.Current().Generation)
}

func TestCommitter_SlowTransitionDoesNotBlockReaders(t *testing.T) {
	store, commit := session.NewStore(nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := commit.Update(func(cur domain.Session) (domain.Session, bool, error) {
			close(entered)
			<-release
			return domain.Session{Status: domain.StatusUnauthenticated, Generation: cur.Generation + 1}, true, nil
		})
		assert.NoError(t, err)
	}()
	<-entered

	read := make(chan domain.Status, 1)
	go func() { read <- store.Current().Status }()

	select {
	case status := <-read:
		assert.Equal(t, domain.StatusInit, status)
	case <-time.After(time.Second):
		t.Fatal("Current blocked while a transition was running")
	}

	close(release)
	<-done
	assert.Equal(t, domain.StatusUnauthenticated, store.Current().Status)
}

func TestCommitter_TransitionsAreSerialized(t *testing.T) {
	_, commit := session.NewStore(nil)

	var mu sync.Mutex
	active, maxActive := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := commit.Update(func(cur domain.Session) (domain.Session, bool, error) {
				mu.Lock()
				active++
				maxActive = max(maxActive, active)
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return domain.Session{Status: domain.StatusUnauthenticated, Generation: cur.Generation + 1}, true, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxActive)
}
