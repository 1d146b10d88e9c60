package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/universityofengineers/sms-api/internal/models"
)

// AccountRepository provides database access for authentication identities
// and their refresh-token sessions.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository creates a new instance of AccountRepository.
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// FindByEmail returns an account by email, matched case-insensitively.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	const query = `SELECT id, email, password_hash, role, enabled, created_at, updated_at FROM accounts WHERE email = $1 LIMIT 1`
	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, strings.ToLower(email)); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find account by email: %w", err)
	}
	return &account, nil
}

// FindByID returns an account by identifier.
func (r *AccountRepository) FindByID(ctx context.Context, id int64) (*models.Account, error) {
	const query = `SELECT id, email, password_hash, role, enabled, created_at, updated_at FROM accounts WHERE id = $1 LIMIT 1`
	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find account by id: %w", err)
	}
	return &account, nil
}

// ExistsByEmail reports whether an account with the email already exists.
func (r *AccountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	const query = `SELECT 1 FROM accounts WHERE email = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, strings.ToLower(email)); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check account email: %w", err)
	}
	return true, nil
}

// UpdatePassword overwrites the stored password hash.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// SetEnabled toggles the enabled flag of an account.
func (r *AccountRepository) SetEnabled(ctx context.Context, id int64, enabled bool, updatedAt time.Time) error {
	const query = `UPDATE accounts SET enabled = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, enabled, updatedAt); err != nil {
		return fmt.Errorf("set account enabled: %w", err)
	}
	return nil
}

// CreateRefreshToken persists a refresh session.
func (r *AccountRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const query = `INSERT INTO refresh_tokens (id, account_id, token, expires_at, created_at, revoked)
        VALUES (:id, :account_id, :token, :expires_at, :created_at, :revoked)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken returns a refresh session by its opaque token value.
func (r *AccountRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, account_id, token, expires_at, created_at, revoked, revoked_at FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var stored models.RefreshToken
	if err := r.db.GetContext(ctx, &stored, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &stored, nil
}

// RevokeRefreshToken marks a single refresh session as revoked.
func (r *AccountRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAccountRefreshTokens revokes every live session of an account.
// Called on password reset and on disable so stolen sessions die with it.
func (r *AccountRepository) RevokeAccountRefreshTokens(ctx context.Context, accountID int64) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = NOW() WHERE account_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("revoke account refresh tokens: %w", err)
	}
	return nil
}
