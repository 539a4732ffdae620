package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sumire/arena/internal/domain"
)

// UserStore defines the user data access interface consumed by AuthService.
type UserStore interface {
	FindByID(ctx context.Context, id int64) (*domain.UserRecord, error)
	FindByEmail(ctx context.Context, email string) (*domain.UserRecord, error)
	Create(ctx context.Context, user domain.UserRecord) (*domain.UserRecord, error)
	Upsert(ctx context.Context, user domain.UserRecord) (*domain.UserRecord, error)
	SetLinkedAccount(ctx context.Context, id int64, username, avatarURL string, verified bool) (*domain.UserRecord, error)
}

// TokenStore keeps short-lived server-side token state.
type TokenStore interface {
	IssueExchangeCode(ctx context.Context, provider domain.AuthProvider, userID int64, ttl time.Duration) (string, error)
	ConsumeExchangeCode(ctx context.Context, provider domain.AuthProvider, code string) (int64, error)
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// AuthConfig holds token settings.
type AuthConfig struct {
	JWTSecret       string
	TokenTTL        time.Duration
	ExchangeCodeTTL time.Duration
	PasswordParams  PasswordParams
}

// AuthService handles authentication logic.
type AuthService struct {
	users     UserStore
	tokens    TokenStore
	verifier  LinkVerifier
	providers map[domain.AuthProvider]OAuthProvider
	cfg       AuthConfig
	jwtSecret []byte
	logger    *slog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserStore, tokens TokenStore, verifier LinkVerifier, providers []OAuthProvider, cfg AuthConfig, logger *slog.Logger) *AuthService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.ExchangeCodeTTL <= 0 {
		cfg.ExchangeCodeTTL = 2 * time.Minute
	}
	if cfg.PasswordParams == (PasswordParams{}) {
		cfg.PasswordParams = DefaultPasswordParams
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := make(map[domain.AuthProvider]OAuthProvider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}

	return &AuthService{
		users:     users,
		tokens:    tokens,
		verifier:  verifier,
		providers: m,
		cfg:       cfg,
		jwtSecret: []byte(cfg.JWTSecret),
		logger:    logger,
	}
}

// RegisterInput is a local sign-up.
type RegisterInput struct {
	DisplayName string
	Email       string
	Password    string
}

// Register creates a local account and returns a token for it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.AuthResult, error) {
	email := normalizeEmail(in.Email)

	hash, err := HashPassword(in.Password, s.cfg.PasswordParams)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Create(ctx, domain.UserRecord{
		Provider:     domain.AuthProviderLocal,
		ProviderID:   email,
		Email:        email,
		DisplayName:  strings.TrimSpace(in.DisplayName),
		PasswordHash: &hash,
	})
	if err != nil {
		return nil, fmt.Errorf("create local user: %w", err)
	}

	s.logger.Info("user registered", slog.Int64("user_id", user.ID))
	return s.issue(user)
}

// Login checks local credentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if user.PasswordHash == nil {
		return nil, domain.ErrInvalidCredentials
	}

	ok, err := VerifyPassword(password, *user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password for user %d: %w", user.ID, err)
	}
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}
	return s.issue(user)
}

// AuthURL returns the consent URL of provider.
func (s *AuthService) AuthURL(provider domain.AuthProvider, state string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", fmt.Errorf("%w: provider %q not configured", domain.ErrNotFound, provider)
	}
	return p.AuthCodeURL(state), nil
}

// HandleCallback exchanges the provider's code, upserts the user and returns
// a one-time code the client trades for a token.
func (s *AuthService) HandleCallback(ctx context.Context, provider domain.AuthProvider, code string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", fmt.Errorf("%w: provider %q not configured", domain.ErrNotFound, provider)
	}

	identity, err := p.Exchange(ctx, code)
	if err != nil {
		return "", err
	}

	user, err := s.users.Upsert(ctx, domain.UserRecord{
		Provider:    provider,
		ProviderID:  identity.ProviderID,
		Email:       normalizeEmail(identity.Email),
		DisplayName: identity.DisplayName,
		AvatarURL:   strPtr(identity.AvatarURL),
	})
	if err != nil {
		return "", fmt.Errorf("upsert %s user: %w", provider, err)
	}

	return s.tokens.IssueExchangeCode(ctx, provider, user.ID, s.cfg.ExchangeCodeTTL)
}

// Exchange trades a one-time callback code for a token.
func (s *AuthService) Exchange(ctx context.Context, provider domain.AuthProvider, code string) (*domain.AuthResult, error) {
	userID, err := s.tokens.ConsumeExchangeCode(ctx, provider, code)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// TokenClaims is what a validated token carries.
type TokenClaims struct {
	UserID    int64
	TokenID   string
	ExpiresAt time.Time
}

// ValidateToken validates an access token. An expired or revoked token is
// reported as ErrSessionExpired.
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, domain.ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse token: %v", domain.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, domain.ErrUnauthorized
	}

	tokenType, _ := claims["type"].(string)
	if tokenType != "access" {
		return nil, domain.ErrUnauthorized
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return nil, domain.ErrUnauthorized
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}

	jti, _ := claims["jti"].(string)
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, domain.ErrUnauthorized
	}

	revoked, err := s.tokens.IsRevoked(ctx, jti)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, domain.ErrSessionExpired
	}

	return &TokenClaims{UserID: userID, TokenID: jti, ExpiresAt: exp.Time}, nil
}

// GetUser retrieves a user by ID.
func (s *AuthService) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	rec, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	u := rec.Identity()
	return &u, nil
}

// LinkAccount verifies and attaches an external account. An account that
// fails verification is recorded unverified and ErrLinkUnverified returned.
func (s *AuthService) LinkAccount(ctx context.Context, userID int64, externalUsername string) (*domain.User, error) {
	username := strings.TrimSpace(externalUsername)

	v, err := s.verifier.Verify(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("verify %q: %w", username, err)
	}

	rec, err := s.users.SetLinkedAccount(ctx, userID, username, v.AvatarURL, v.Verified)
	if err != nil {
		return nil, err
	}

	s.logger.Info("account link submitted",
		slog.Int64("user_id", userID),
		slog.String("external_username", username),
		slog.Bool("verified", v.Verified),
	)

	if !v.Verified {
		return nil, fmt.Errorf("%w: %s", domain.ErrLinkUnverified, username)
	}
	u := rec.Identity()
	return &u, nil
}

// Logout revokes the presented token.
func (s *AuthService) Logout(ctx context.Context, claims *TokenClaims) error {
	return s.tokens.Revoke(ctx, claims.TokenID, claims.ExpiresAt)
}

func (s *AuthService) issue(user *domain.UserRecord) (*domain.AuthResult, error) {
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  strconv.FormatInt(user.ID, 10),
		"type": "access",
		"jti":  uuid.NewString(),
		"iat":  now.Unix(),
		"exp":  now.Add(s.cfg.TokenTTL).Unix(),
	})
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	return &domain.AuthResult{Token: signed, User: user.Identity()}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
