// Package onboarding drives navigation around the account-linking step.
//
// Navigation is decided only from committed session state. The result of a
// completion call never navigates on its own, so a success that settles
// after an unrelated re-render is not lost and a failed link never advances.
package onboarding

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sumire/arena/internal/domain"
	"github.com/sumire/arena/internal/session"
)

// SessionSource is the read side the gate observes.
type SessionSource interface {
	Session() domain.Session
	Subscribe(fn session.Listener) (unsubscribe func())
}

// Completer submits the account link.
type Completer interface {
	CompleteOAuthOnboarding(ctx context.Context, link domain.LinkInfo) error
}

// Navigator changes the visible route. Implementations must not start auth
// actions; they are called from inside store notifications.
type Navigator interface {
	Navigate(route string)
}

// Routes are the destinations the gate may navigate to.
type Routes struct {
	// Entry is where an abandoned onboarding goes.
	Entry string
	// Done is where a completed onboarding goes.
	Done string
}

// DefaultRoutes are used when NewGate gets zero Routes.
var DefaultRoutes = Routes{Entry: "/", Done: "/dashboard"}

// Gate is the onboarding screen's controller.
type Gate struct {
	source    SessionSource
	completer Completer
	nav       Navigator
	routes    Routes
	logger    *slog.Logger

	mu          sync.Mutex
	mounted     bool
	navigated   bool
	unsubscribe func()
}

// NewGate creates an unmounted gate.
func NewGate(source SessionSource, completer Completer, nav Navigator, routes Routes, logger *slog.Logger) *Gate {
	if routes == (Routes{}) {
		routes = DefaultRoutes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		source:    source,
		completer: completer,
		nav:       nav,
		routes:    routes,
		logger:    logger.With(slog.String("component", "onboarding")),
	}
}

// Mount starts observing the session. An already authenticated session
// leaves onboarding immediately.
func (g *Gate) Mount() {
	g.mu.Lock()
	if g.mounted {
		g.mu.Unlock()
		return
	}
	g.mounted = true
	g.navigated = false
	g.mu.Unlock()

	unsubscribe := g.source.Subscribe(g.observe)

	g.mu.Lock()
	g.unsubscribe = unsubscribe
	g.mu.Unlock()

	g.observe(g.source.Session())
}

// Unmount stops observing the session.
func (g *Gate) Unmount() {
	g.mu.Lock()
	unsubscribe := g.unsubscribe
	g.unsubscribe = nil
	g.mounted = false
	g.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Submit forwards the link to the completer and reports its error.
// It never navigates.
func (g *Gate) Submit(ctx context.Context, externalUsername string) error {
	return g.completer.CompleteOAuthOnboarding(ctx, domain.LinkInfo{ExternalUsername: externalUsername})
}

// Close abandons onboarding and returns to the entry route. The session is
// left as it is.
func (g *Gate) Close() {
	g.Unmount()
	g.nav.Navigate(g.routes.Entry)
}

func (g *Gate) observe(s domain.Session) {
	if s.Status != domain.StatusAuthenticated {
		return
	}

	g.mu.Lock()
	if !g.mounted || g.navigated {
		g.mu.Unlock()
		return
	}
	g.navigated = true
	g.mu.Unlock()

	g.logger.Debug("onboarding complete, leaving", slog.String("route", g.routes.Done))
	g.nav.Navigate(g.routes.Done)
}
