// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

// Package postgres implements the revoked-token denylist using PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/veridianid/veridian/internal/token"
)

// querier is satisfied by *pgxpool.Pool and by pgxmock pools in tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RevokedTokenRepository implements token.RevokedTokenRepository using PostgreSQL.
type RevokedTokenRepository struct {
	db querier
}

// NewRevokedTokenRepository creates a new RevokedTokenRepository.
func NewRevokedTokenRepository(db querier) *RevokedTokenRepository {
	return &RevokedTokenRepository{db: db}
}

// Revoke denylists a refresh token by jti until its natural expiry.
// Re-revoking the same jti is a no-op at the storage layer; the issuer
// rejects already-revoked tokens before reaching here.
func (r *RevokedTokenRepository) Revoke(ctx context.Context, jti string, accountID ulid.ULID, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO revoked_tokens (jti, account_id, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (jti) DO NOTHING
	`, jti, accountID.String(), expiresAt, time.Now())
	if err != nil {
		return oops.Code("TOKEN_REVOKE_INSERT_FAILED").
			With("operation", "insert revoked token").
			With("jti", jti).
			Wrap(err)
	}
	return nil
}

// IsRevoked reports whether the jti is on the denylist.
func (r *RevokedTokenRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1)
	`, jti).Scan(&revoked)
	if err != nil {
		return false, oops.Code("TOKEN_REVOKED_LOOKUP_FAILED").
			With("operation", "check revoked token").
			With("jti", jti).
			Wrap(err)
	}
	return revoked, nil
}

// RevokeAccount sets the account's revocation watermark. Later watermarks
// replace earlier ones; the watermark never moves backwards.
func (r *RevokedTokenRepository) RevokeAccount(ctx context.Context, accountID ulid.ULID, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO account_revocations (account_id, revoked_before)
		VALUES ($1, $2)
		ON CONFLICT (account_id)
		DO UPDATE SET revoked_before = GREATEST(account_revocations.revoked_before, EXCLUDED.revoked_before)
	`, accountID.String(), at)
	if err != nil {
		return oops.Code("ACCOUNT_REVOKE_FAILED").
			With("operation", "upsert revocation watermark").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return nil
}

// AccountRevokedAt returns the account's revocation watermark, or nil if
// the account has never been bulk-revoked.
func (r *RevokedTokenRepository) AccountRevokedAt(ctx context.Context, accountID ulid.ULID) (*time.Time, error) {
	var at time.Time
	err := r.db.QueryRow(ctx, `
		SELECT revoked_before FROM account_revocations WHERE account_id = $1
	`, accountID.String()).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_REVOKED_AT_FAILED").
			With("operation", "get revocation watermark").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return &at, nil
}

// DeleteExpired prunes denylist rows whose tokens have expired.
func (r *RevokedTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.Exec(ctx, `
		DELETE FROM revoked_tokens WHERE expires_at < $1
	`, time.Now())
	if err != nil {
		return 0, oops.Code("TOKEN_PRUNE_FAILED").
			With("operation", "delete expired revoked tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// Compile-time interface check.
var _ token.RevokedTokenRepository = (*RevokedTokenRepository)(nil)
