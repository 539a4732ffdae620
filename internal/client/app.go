// Package client assembles the session layer of one client instance.
package client

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sumire/arena/internal/auth"
	"github.com/sumire/arena/internal/onboarding"
	"github.com/sumire/arena/internal/session"
)

// App owns the single session store of a client and everything wired to it.
type App struct {
	Store  *session.Store
	Facade *auth.Facade

	actions *auth.Actions
	logger  *slog.Logger
}

// New builds the store, actions and facade. It is called once per client.
func New(deps auth.Deps) *App {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	store, commit := session.NewStore(deps.Logger)
	actions := auth.NewActions(commit, deps)
	return &App{
		Store:   store,
		Facade:  auth.NewFacade(store, actions),
		actions: actions,
		logger:  deps.Logger,
	}
}

// Start runs the bootstrap sequence: the OAuth callback check first, then
// rehydration from the persisted credential if the session is still in INIT.
func (a *App) Start(ctx context.Context) error {
	cbErr := a.Facade.CheckOAuthCallback(ctx)
	if cbErr != nil {
		a.logger.Info("oauth callback not resolved", slog.Any("error", cbErr))
	}
	initErr := a.Facade.InitializeAuth(ctx)
	return errors.Join(cbErr, initErr)
}

// OnboardingGate returns a gate bound to this client's session.
func (a *App) OnboardingGate(nav onboarding.Navigator, routes onboarding.Routes) *onboarding.Gate {
	return onboarding.NewGate(a.Facade, a.Facade, nav, routes, a.logger)
}

// Close waits for background work such as best-effort server logout.
func (a *App) Close() {
	a.actions.Wait()
}
