package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/GTDGit/gtd_wechat/internal/models"
)

// CredentialRepository stores credentials in the credentials table. It
// implements the broker cache so several instances can share tokens without Redis.
type CredentialRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(db *sqlx.DB) *CredentialRepository {
	return &CredentialRepository{db: db, now: time.Now}
}

// WithClock replaces the time source used for expiry.
func (r *CredentialRepository) WithClock(now func() time.Time) *CredentialRepository {
	r.now = now
	return r
}

// Get returns the value for key unless it is missing or expired.
func (r *CredentialRepository) Get(ctx context.Context, key string) (string, bool, error) {
	const query = `SELECT key, value, expires_at, updated_at FROM credentials
        WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`

	var c models.Credential
	if err := r.db.GetContext(ctx, &c, query, key, r.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get credential %s: %w", key, err)
	}
	return c.Value, true, nil
}

// Set inserts or replaces the value for key in one statement. ttl <= 0
// stores it without expiry.
func (r *CredentialRepository) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	const query = `INSERT INTO credentials (key, value, expires_at, updated_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (key) DO UPDATE
        SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at`

	now := r.now().UTC()
	var expiresAt *time.Time
	if ttl > 0 {
		t := now.Add(ttl)
		expiresAt = &t
	}

	if _, err := r.db.ExecContext(ctx, query, key, value, expiresAt, now); err != nil {
		return fmt.Errorf("failed to set credential %s: %w", key, err)
	}
	return nil
}

// DeleteExpired removes rows past their expiry and returns how many were removed.
func (r *CredentialRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const query = `DELETE FROM credentials WHERE expires_at IS NOT NULL AND expires_at <= $1`

	res, err := r.db.ExecContext(ctx, query, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired credentials: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the database connection.
func (r *CredentialRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
