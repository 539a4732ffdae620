// Package auth implements the actions that move the client session through
// sign-in, OAuth hand-off and onboarding, and the facade UI code reads it
// through.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sumire/arena/internal/domain"
	"github.com/sumire/arena/internal/session"
	"github.com/sumire/arena/internal/storage"
)

const defaultLogoutTimeout = 5 * time.Second

// Actions is the only writer of the session store.
type Actions struct {
	commit     *session.Committer
	idp        IdentityBoundary
	storage    storage.Storage
	location   Location
	redirector Redirector
	validate   *validator.Validate
	logger     *slog.Logger

	logoutTimeout time.Duration
	background    sync.WaitGroup

	mu       sync.Mutex
	consumed map[string]struct{}
}

// NewActions wires the actions to the store's write handle.
func NewActions(commit *session.Committer, deps Deps) *Actions {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := deps.LogoutTimeout
	if timeout <= 0 {
		timeout = defaultLogoutTimeout
	}
	return &Actions{
		commit:        commit,
		idp:           deps.Identity,
		storage:       deps.Storage,
		location:      deps.Location,
		redirector:    deps.Redirector,
		validate:      newValidator(),
		logger:        logger.With(slog.String("component", "auth")),
		logoutTimeout: timeout,
		consumed:      make(map[string]struct{}),
	}
}

// Wait blocks until background work started by Logout has finished.
func (a *Actions) Wait() {
	a.background.Wait()
}

// InitializeAuth rehydrates the session from the persisted credential. It
// only acts on a session still in INIT.
func (a *Actions) InitializeAuth(ctx context.Context) error {
	var skipped bool
	next, err := a.commit.Update(func(cur domain.Session) (domain.Session, bool, error) {
		if cur.Status != domain.StatusInit {
			skipped = true
			return cur, false, nil
		}
		return loading(cur, false), true, nil
	})
	if err != nil || skipped {
		return err
	}
	gen := next.Generation

	token, err := a.storage.Get(KeyToken)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			a.logger.Warn("read persisted credential", slog.Any("error", err))
		}
		a.signedOut(gen)
		return nil
	}

	user, err := a.idp.Me(ctx, token)
	if err != nil {
		ae := toAuthError(err)
		if ae.Kind == domain.KindNetwork {
			return a.fail(gen, ae, false)
		}
		a.logger.Info("persisted credential rejected", slog.String("kind", string(ae.Kind)))
		a.eraseToken()
		a.signedOut(gen)
		return nil
	}

	return a.resolve(gen, user, "")
}

// Login signs in with local credentials.
func (a *Actions) Login(ctx context.Context, creds domain.Credentials) error {
	gen, err := a.begin("login", false, domain.StatusUnauthenticated, domain.StatusError)
	if err != nil {
		return err
	}
	if err := a.validateInput(creds); err != nil {
		return a.fail(gen, toAuthError(err), false)
	}
	creds.Email = strings.TrimSpace(creds.Email)

	res, err := a.idp.Login(ctx, creds)
	if err != nil {
		return a.fail(gen, toAuthError(err), false)
	}
	return a.resolve(gen, &res.User, res.Token)
}

// Register creates a local account and signs it in.
func (a *Actions) Register(ctx context.Context, profile domain.Profile) error {
	gen, err := a.begin("register", false, domain.StatusUnauthenticated, domain.StatusError)
	if err != nil {
		return err
	}
	if err := a.validateInput(profile); err != nil {
		return a.fail(gen, toAuthError(err), false)
	}
	profile.Email = strings.TrimSpace(profile.Email)
	profile.DisplayName = strings.TrimSpace(profile.DisplayName)

	res, err := a.idp.Register(ctx, profile)
	if err != nil {
		return a.fail(gen, toAuthError(err), false)
	}
	return a.resolve(gen, &res.User, res.Token)
}

// InitiateGoogleAuth starts the Google consent flow.
func (a *Actions) InitiateGoogleAuth(ctx context.Context) error {
	return a.initiateOAuth(ctx, domain.AuthProviderGoogle)
}

// InitiateGitHubAuth starts the GitHub consent flow.
func (a *Actions) InitiateGitHubAuth(ctx context.Context) error {
	return a.initiateOAuth(ctx, domain.AuthProviderGitHub)
}

// initiateOAuth records the pending provider and hands control to the
// redirector. The session is resolved later by CheckOAuthCallback.
func (a *Actions) initiateOAuth(ctx context.Context, provider domain.AuthProvider) error {
	next, err := a.commit.Update(func(cur domain.Session) (domain.Session, bool, error) {
		if err := checkSource("oauth "+string(provider), cur.Status, domain.StatusUnauthenticated, domain.StatusError); err != nil {
			return cur, false, err
		}
		if err := a.storage.Set(KeyOAuthPending, string(provider)); err != nil {
			a.logger.Warn("persist pending provider", slog.Any("error", err))
		}
		return domain.Session{
			Status:          domain.StatusOAuthPending,
			PendingProvider: provider,
			Generation:      cur.Generation + 1,
		}, true, nil
	})
	if err != nil {
		return err
	}

	target := a.idp.OAuthURL(provider)
	a.logger.Info("redirecting to provider", slog.String("provider", string(provider)))
	if err := a.redirector.Redirect(ctx, target); err != nil {
		a.deletePending()
		return a.fail(next.Generation, domain.NewAuthError(domain.KindNetwork, fmt.Errorf("redirect to %s: %w", provider, err)), false)
	}
	return nil
}

// CheckOAuthCallback inspects the current location for provider callback
// parameters and resolves them exactly once. Without parameters it does
// nothing.
func (a *Actions) CheckOAuthCallback(ctx context.Context) error {
	cb, ok := parseCallback(a.location.Current())
	if !ok {
		return nil
	}
	if !a.reserve(cb.key()) {
		a.stripCallback()
		a.logger.Debug("oauth callback already consumed")
		return nil
	}

	gen, err := a.begin("oauth callback", false,
		domain.StatusInit, domain.StatusUnauthenticated, domain.StatusOAuthPending, domain.StatusError)
	if err != nil {
		a.release(cb.key())
		return err
	}
	a.stripCallback()

	provider := cb.provider
	if provider == "" {
		provider = a.pendingProvider()
	}
	a.deletePending()

	switch {
	case cb.denied():
		a.signedOut(gen)
		a.logger.Info("oauth consent denied", slog.String("provider", string(provider)))
		return domain.NewAuthError(domain.KindOAuthDenied, domain.ErrOAuthDenied)
	case cb.errCode != "" || cb.code == "":
		return a.fail(gen, domain.NewAuthError(domain.KindCallbackMismatch,
			fmt.Errorf("%w: provider error %q", domain.ErrCallbackMismatch, cb.errCode)), false)
	case provider == "":
		return a.fail(gen, domain.NewAuthError(domain.KindCallbackMismatch,
			fmt.Errorf("%w: unknown provider", domain.ErrCallbackMismatch)), false)
	}

	res, err := a.idp.ExchangeOAuth(ctx, provider, cb.code)
	if err != nil {
		return a.fail(gen, toAuthError(err), false)
	}
	return a.resolve(gen, &res.User, res.Token)
}

// CompleteOAuthOnboarding submits the external account link. An unverified
// link keeps the session in ONBOARDING_REQUIRED with the error set.
func (a *Actions) CompleteOAuthOnboarding(ctx context.Context, link domain.LinkInfo) error {
	var previous *domain.User
	next, err := a.commit.Update(func(cur domain.Session) (domain.Session, bool, error) {
		if cur.Status == domain.StatusLoading {
			return cur, false, domain.ErrActionInFlight
		}
		onboarding := cur.Status == domain.StatusOnboardingRequired ||
			(cur.Status == domain.StatusError && cur.User != nil && !cur.User.Verified())
		if !onboarding {
			return cur, false, fmt.Errorf("%w: onboarding from %s", domain.ErrInvalidTransition, cur.Status)
		}
		previous = cur.User.Clone()
		return loading(cur, true), true, nil
	})
	if err != nil {
		return err
	}
	gen := next.Generation

	if err := a.validateInput(link); err != nil {
		return a.fail(gen, toAuthError(err), true)
	}
	link.ExternalUsername = strings.TrimSpace(link.ExternalUsername)

	token, err := a.storage.Get(KeyToken)
	if err != nil {
		return a.expire(gen, domain.NewAuthError(domain.KindSessionExpired, fmt.Errorf("%w: no credential", domain.ErrSessionExpired)))
	}

	user, err := a.idp.LinkAccount(ctx, token, link)
	if err != nil {
		ae := toAuthError(err)
		switch ae.Kind {
		case domain.KindSessionExpired:
			return a.expire(gen, ae)
		case domain.KindLinkUnverified:
			return a.unverified(gen, previous, ae)
		default:
			return a.fail(gen, ae, true)
		}
	}

	if !user.Verified() {
		return a.unverified(gen, user, domain.NewAuthError(domain.KindLinkUnverified,
			fmt.Errorf("%w: %s", domain.ErrLinkUnverified, link.ExternalUsername)))
	}
	return a.resolve(gen, user, "")
}

// Logout resets the session unconditionally, including while another action
// is in flight; that action's result is discarded when it arrives.
func (a *Actions) Logout(ctx context.Context) error {
	var token string
	_, err := a.commit.Update(func(cur domain.Session) (domain.Session, bool, error) {
		token = a.clearCredentials()
		return domain.Session{
			Status:     domain.StatusUnauthenticated,
			Generation: cur.Generation + 1,
		}, true, nil
	})
	if err != nil {
		return err
	}

	if token != "" {
		a.background.Add(1)
		go func() {
			defer a.background.Done()
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.logoutTimeout)
			defer cancel()
			if err := a.idp.Logout(ctx, token); err != nil {
				a.logger.Warn("server logout failed", slog.Any("error", err))
			}
		}()
	}
	return nil
}

// begin moves the session to LOADING for a new action and returns the
// generation its result must be committed against.
func (a *Actions) begin(op string, keepUser bool, allowed ...domain.Status) (uint64, error) {
	next, err := a.commit.Update(func(cur domain.Session) (domain.Session, bool, error) {
		if err := checkSource(op, cur.Status, allowed...); err != nil {
			return cur, false, err
		}
		return loading(cur, keepUser), true, nil
	})
	if err != nil {
		return 0, err
	}
	return next.Generation, nil
}

func checkSource(op string, status domain.Status, allowed ...domain.Status) error {
	if status == domain.StatusLoading {
		return domain.ErrActionInFlight
	}
	if !slices.Contains(allowed, status) {
		return fmt.Errorf("%w: %s from %s", domain.ErrInvalidTransition, op, status)
	}
	return nil
}

func loading(cur domain.Session, keepUser bool) domain.Session {
	next := domain.Session{
		Status:     domain.StatusLoading,
		Generation: cur.Generation + 1,
	}
	if keepUser {
		next.User = cur.User
	}
	return next
}

// resolve commits a resolved user. A non-empty token is persisted in the
// same step so a concurrent logout cannot be overtaken.
func (a *Actions) resolve(gen uint64, user *domain.User, token string) error {
	_, stale, err := a.commit.CommitAt(gen, func(cur domain.Session) (domain.Session, bool, error) {
		if token != "" {
			if err := a.storage.Set(KeyToken, token); err != nil {
				return cur, false, fmt.Errorf("persist credential: %w", err)
			}
		}
		return domain.Session{
			Status:     domain.Resolved(user),
			User:       user.Clone(),
			Generation: cur.Generation,
		}, true, nil
	})
	if err != nil {
		return a.fail(gen, domain.NewAuthError(domain.KindNetwork, err), false)
	}
	if stale {
		return nil
	}
	a.logger.Info("session resolved", slog.Int64("user_id", user.ID), slog.Bool("verified", user.Verified()))
	return nil
}

// fail commits an ERROR session and returns the error to the caller.
func (a *Actions) fail(gen uint64, ae *domain.AuthError, keepUser bool) error {
	_, _, err := a.commit.CommitAt(gen, func(cur domain.Session) (domain.Session, bool, error) {
		next := domain.Session{
			Status:     domain.StatusError,
			Error:      ae.Clone(),
			Generation: cur.Generation,
		}
		if keepUser && !cur.User.Verified() {
			next.User = cur.User
		}
		return next, true, nil
	})
	if err != nil {
		a.logger.Error("commit failure state", slog.Any("error", err))
	}
	return ae
}

// unverified keeps the user in onboarding with the link error attached.
func (a *Actions) unverified(gen uint64, user *domain.User, ae *domain.AuthError) error {
	if user == nil || user.Verified() {
		return a.fail(gen, ae, true)
	}
	_, _, err := a.commit.CommitAt(gen, func(cur domain.Session) (domain.Session, bool, error) {
		return domain.Session{
			Status:     domain.StatusOnboardingRequired,
			User:       user.Clone(),
			Error:      ae.Clone(),
			Generation: cur.Generation,
		}, true, nil
	})
	if err != nil {
		a.logger.Error("commit unverified link", slog.Any("error", err))
	}
	return ae
}

// expire performs a logout-equivalent reset and records SessionExpired.
func (a *Actions) expire(gen uint64, ae *domain.AuthError) error {
	_, stale, err := a.commit.CommitAt(gen, func(cur domain.Session) (domain.Session, bool, error) {
		a.clearCredentials()
		return domain.Session{
			Status:     domain.StatusError,
			Error:      ae.Clone(),
			Generation: cur.Generation + 1,
		}, true, nil
	})
	if err != nil {
		a.logger.Error("commit expired session", slog.Any("error", err))
	}
	if !stale {
		a.logger.Info("session expired, credential erased")
	}
	return ae
}

func (a *Actions) signedOut(gen uint64) {
	_, _, err := a.commit.CommitAt(gen, func(cur domain.Session) (domain.Session, bool, error) {
		return domain.Session{Status: domain.StatusUnauthenticated, Generation: cur.Generation}, true, nil
	})
	if err != nil {
		a.logger.Error("commit signed out", slog.Any("error", err))
	}
}

// clearCredentials erases the token and pending provider and returns the
// token that was stored, if any.
func (a *Actions) clearCredentials() string {
	token, _ := a.storage.Get(KeyToken)
	a.eraseToken()
	a.deletePending()
	return token
}

func (a *Actions) eraseToken() {
	if err := a.storage.Delete(KeyToken); err != nil {
		a.logger.Warn("erase credential", slog.Any("error", err))
	}
}

func (a *Actions) pendingProvider() domain.AuthProvider {
	v, err := a.storage.Get(KeyOAuthPending)
	if err != nil {
		return ""
	}
	p, _ := domain.ParseAuthProvider(v)
	return p
}

func (a *Actions) deletePending() {
	if err := a.storage.Delete(KeyOAuthPending); err != nil {
		a.logger.Warn("erase pending provider", slog.Any("error", err))
	}
}

// toAuthError classifies err, treating anything unknown as a network failure.
func toAuthError(err error) *domain.AuthError {
	var ae *domain.AuthError
	if errors.As(err, &ae) {
		return ae
	}
	return domain.NewAuthError(domain.KindNetwork, err)
}
