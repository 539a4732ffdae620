package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/sumire/arena/internal/domain"
)

const userColumns = `id, provider, provider_id, email, display_name, avatar_url, password_hash,
	external_username, external_avatar_url, link_verified, created_at, updated_at`

const uniqueViolation = "23505"

// UserRepository handles user data access operations.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID retrieves a user by their ID.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*domain.UserRecord, error) {
	var user domain.UserRecord
	err := r.db.GetContext(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find user by id %d: %w", id, err)
	}
	return &user, nil
}

// FindByEmail retrieves the local account registered with email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.UserRecord, error) {
	var user domain.UserRecord
	err := r.db.GetContext(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE provider = $1 AND email = $2`,
		domain.AuthProviderLocal, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// Create inserts a local account. A taken email is ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user domain.UserRecord) (*domain.UserRecord, error) {
	var result domain.UserRecord
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO users (provider, provider_id, email, display_name, avatar_url, password_hash)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+userColumns,
		user.Provider, user.ProviderID, user.Email, user.DisplayName, user.AvatarURL, user.PasswordHash,
	).StructScan(&result)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%w: email already registered", domain.ErrConflict)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &result, nil
}

// Upsert creates a new user or updates an existing one based on provider + provider_id.
// Returns the created or updated user.
func (r *UserRepository) Upsert(ctx context.Context, user domain.UserRecord) (*domain.UserRecord, error) {
	var result domain.UserRecord
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO users (provider, provider_id, email, display_name, avatar_url)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (provider, provider_id)
		 DO UPDATE SET email = EXCLUDED.email,
		               display_name = EXCLUDED.display_name,
		               avatar_url = EXCLUDED.avatar_url,
		               updated_at = NOW()
		 RETURNING `+userColumns,
		user.Provider, user.ProviderID, user.Email, user.DisplayName, user.AvatarURL,
	).StructScan(&result)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &result, nil
}

// SetLinkedAccount records the external account link and its verification result.
func (r *UserRepository) SetLinkedAccount(ctx context.Context, id int64, username, avatarURL string, verified bool) (*domain.UserRecord, error) {
	var avatar *string
	if avatarURL != "" {
		avatar = &avatarURL
	}

	var result domain.UserRecord
	err := r.db.QueryRowxContext(ctx,
		`UPDATE users
		 SET external_username = $2,
		     external_avatar_url = $3,
		     link_verified = $4,
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, username, avatar, verified,
	).StructScan(&result)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%w: external account already linked", domain.ErrConflict)
		}
		return nil, fmt.Errorf("set linked account for user %d: %w", id, err)
	}
	return &result, nil
}
