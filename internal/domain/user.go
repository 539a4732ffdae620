package domain

import "time"

// AuthProvider represents an OAuth provider.
type AuthProvider string

const (
	AuthProviderLocal  AuthProvider = "local"
	AuthProviderGoogle AuthProvider = "google"
	AuthProviderGitHub AuthProvider = "github"
)

// ParseAuthProvider resolves an OAuth provider name. Local is not a redirect
// provider and is rejected.
func ParseAuthProvider(s string) (AuthProvider, bool) {
	switch AuthProvider(s) {
	case AuthProviderGoogle:
		return AuthProviderGoogle, true
	case AuthProviderGitHub:
		return AuthProviderGitHub, true
	default:
		return "", false
	}
}

// LinkedAccount is the external competitive-programming account attached to a user.
type LinkedAccount struct {
	ExternalUsername  string `json:"external_username"`
	ExternalAvatarURL string `json:"external_avatar_url,omitempty"`
	Verified          bool   `json:"verified"`
}

// User is a resolved identity as seen by the client.
type User struct {
	ID            int64          `json:"id"`
	DisplayName   string         `json:"display_name"`
	Email         string         `json:"email"`
	AvatarURL     string         `json:"avatar_url,omitempty"`
	LinkedAccount *LinkedAccount `json:"linked_account,omitempty"`
}

// Verified reports whether the user has a verified linked account.
func (u *User) Verified() bool {
	return u != nil && u.LinkedAccount != nil && u.LinkedAccount.Verified
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.LinkedAccount != nil {
		la := *u.LinkedAccount
		c.LinkedAccount = &la
	}
	return &c
}

// UserRecord is the persisted form of a user on the identity server.
type UserRecord struct {
	ID                int64        `db:"id"`
	Provider          AuthProvider `db:"provider"`
	ProviderID        string       `db:"provider_id"`
	Email             string       `db:"email"`
	DisplayName       string       `db:"display_name"`
	AvatarURL         *string      `db:"avatar_url"`
	PasswordHash      *string      `db:"password_hash"`
	ExternalUsername  *string      `db:"external_username"`
	ExternalAvatarURL *string      `db:"external_avatar_url"`
	LinkVerified      bool         `db:"link_verified"`
	CreatedAt         time.Time    `db:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at"`
}

// Identity projects the record onto the client-facing User.
func (r UserRecord) Identity() User {
	u := User{
		ID:          r.ID,
		DisplayName: r.DisplayName,
		Email:       r.Email,
		AvatarURL:   deref(r.AvatarURL),
	}
	if r.ExternalUsername != nil {
		u.LinkedAccount = &LinkedAccount{
			ExternalUsername:  *r.ExternalUsername,
			ExternalAvatarURL: deref(r.ExternalAvatarURL),
			Verified:          r.LinkVerified,
		}
	}
	return u
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
