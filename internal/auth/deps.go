package auth

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/sumire/arena/internal/domain"
	"github.com/sumire/arena/internal/storage"
)

// Storage keys owned by the auth actions.
const (
	KeyToken         = "auth.token"
	KeyOAuthPending  = "auth.oauth_pending"
	KeyOAuthConsumed = "auth.oauth_consumed"
)

// IdentityBoundary is the backend that checks credentials, exchanges OAuth
// callbacks and verifies linked accounts.
type IdentityBoundary interface {
	Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResult, error)
	Register(ctx context.Context, profile domain.Profile) (*domain.AuthResult, error)
	Me(ctx context.Context, token string) (*domain.User, error)
	OAuthURL(provider domain.AuthProvider) string
	ExchangeOAuth(ctx context.Context, provider domain.AuthProvider, code string) (*domain.AuthResult, error)
	LinkAccount(ctx context.Context, token string, link domain.LinkInfo) (*domain.User, error)
	Logout(ctx context.Context, token string) error
}

// Location is the client's current navigation address.
type Location interface {
	Current() *url.URL
	// Replace swaps the address without a new navigation.
	Replace(u *url.URL)
}

// Redirector hands control to an external page, e.g. a provider consent screen.
type Redirector interface {
	Redirect(ctx context.Context, target string) error
}

// Deps are the collaborators of Actions.
type Deps struct {
	Identity   IdentityBoundary
	Storage    storage.Storage
	Location   Location
	Redirector Redirector
	Logger     *slog.Logger

	// LogoutTimeout bounds the best-effort server logout call.
	LogoutTimeout time.Duration
}
