package auth

import (
	"context"

	"github.com/sumire/arena/internal/domain"
	"github.com/sumire/arena/internal/session"
)

// Facade is what UI code reads the session through. It selects fields from
// the store and forwards calls to Actions; it keeps no state of its own.
type Facade struct {
	store   *session.Store
	actions *Actions
}

// NewFacade returns a facade over store and actions.
func NewFacade(store *session.Store, actions *Actions) *Facade {
	return &Facade{store: store, actions: actions}
}

func (f *Facade) Session() domain.Session              { return f.store.Current() }
func (f *Facade) Status() domain.Status                { return f.store.Current().Status }
func (f *Facade) User() *domain.User                   { return f.store.Current().User }
func (f *Facade) Err() *domain.AuthError               { return f.store.Current().Error }
func (f *Facade) PendingProvider() domain.AuthProvider { return f.store.Current().PendingProvider }
func (f *Facade) IsAuthenticated() bool {
	return f.store.Current().Status == domain.StatusAuthenticated
}
func (f *Facade) NeedsOnboarding() bool {
	return f.store.Current().Status == domain.StatusOnboardingRequired
}
func (f *Facade) IsLoading() bool {
	return f.store.Current().Status == domain.StatusLoading
}

// Subscribe forwards to the store.
func (f *Facade) Subscribe(fn session.Listener) (unsubscribe func()) {
	return f.store.Subscribe(fn)
}

func (f *Facade) InitializeAuth(ctx context.Context) error {
	return f.actions.InitializeAuth(ctx)
}

func (f *Facade) Login(ctx context.Context, creds domain.Credentials) error {
	return f.actions.Login(ctx, creds)
}

func (f *Facade) Register(ctx context.Context, profile domain.Profile) error {
	return f.actions.Register(ctx, profile)
}

func (f *Facade) InitiateGoogleAuth(ctx context.Context) error {
	return f.actions.InitiateGoogleAuth(ctx)
}

func (f *Facade) InitiateGitHubAuth(ctx context.Context) error {
	return f.actions.InitiateGitHubAuth(ctx)
}

func (f *Facade) CheckOAuthCallback(ctx context.Context) error {
	return f.actions.CheckOAuthCallback(ctx)
}

func (f *Facade) CompleteOAuthOnboarding(ctx context.Context, link domain.LinkInfo) error {
	return f.actions.CompleteOAuthOnboarding(ctx, link)
}

func (f *Facade) Logout(ctx context.Context) error {
	return f.actions.Logout(ctx)
}
