package domain

import "fmt"

// Status is the lifecycle state of a client session.
type Status string

const (
	StatusInit               Status = "INIT"
	StatusLoading            Status = "LOADING"
	StatusUnauthenticated    Status = "UNAUTHENTICATED"
	StatusOAuthPending       Status = "OAUTH_PENDING"
	StatusOnboardingRequired Status = "ONBOARDING_REQUIRED"
	StatusAuthenticated      Status = "AUTHENTICATED"
	StatusError              Status = "ERROR"
)

// Session is the client's view of who is signed in.
type Session struct {
	Status          Status       `json:"status"`
	User            *User        `json:"user,omitempty"`
	Error           *AuthError   `json:"error,omitempty"`
	PendingProvider AuthProvider `json:"oauth_pending_provider,omitempty"`
	// Generation increases on every action start and every reset. Results
	// issued against an older generation are discarded.
	Generation uint64 `json:"generation"`
}

// NewSession returns the bootstrap session.
func NewSession() Session {
	return Session{Status: StatusInit}
}

// Clone returns a deep copy of s.
func (s Session) Clone() Session {
	s.User = s.User.Clone()
	s.Error = s.Error.Clone()
	return s
}

// Resolved returns the settled status for a resolved user.
func Resolved(u *User) Status {
	if u.Verified() {
		return StatusAuthenticated
	}
	return StatusOnboardingRequired
}

// Validate checks the session invariants.
//
// LOADING and ERROR may keep an unverified user so an onboarding attempt
// that fails on the network does not drop the resolved identity. A verified
// user is only ever visible as AUTHENTICATED.
func (s Session) Validate() error {
	switch s.Status {
	case StatusInit, StatusLoading, StatusUnauthenticated, StatusOAuthPending,
		StatusOnboardingRequired, StatusAuthenticated, StatusError:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, s.Status)
	}

	if s.User.Verified() != (s.Status == StatusAuthenticated) {
		return fmt.Errorf("%w: status %s with verified=%t", ErrInvalidTransition, s.Status, s.User.Verified())
	}
	if s.User != nil && !s.User.Verified() {
		switch s.Status {
		case StatusOnboardingRequired, StatusLoading, StatusError:
		default:
			return fmt.Errorf("%w: unverified user under status %s", ErrInvalidTransition, s.Status)
		}
	}
	if s.Status == StatusOnboardingRequired && s.User == nil {
		return fmt.Errorf("%w: onboarding without user", ErrInvalidTransition)
	}

	if (s.PendingProvider != "") != (s.Status == StatusOAuthPending) {
		return fmt.Errorf("%w: pending provider %q under status %s", ErrInvalidTransition, s.PendingProvider, s.Status)
	}

	switch {
	case s.Status == StatusError && s.Error == nil:
		return fmt.Errorf("%w: error status without error", ErrInvalidTransition)
	case s.Error != nil && s.Status != StatusError &&
		!(s.Status == StatusOnboardingRequired && s.Error.Kind == KindLinkUnverified):
		return fmt.Errorf("%w: error %s under status %s", ErrInvalidTransition, s.Error.Kind, s.Status)
	}
	return nil
}
