// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

// Package token implements the signed access/refresh token issuer.
//
// Access tokens are short-lived HS256 JWTs verified statelessly. Refresh
// tokens are longer-lived JWTs whose IDs (jti) can land on a Postgres-backed
// denylist; a denylisted refresh token can never again be exchanged or
// revoked. Access tokens deliberately skip the denylist so that verification
// stays a pure CPU operation; outstanding access tokens always run out their
// natural expiry.
package token

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/veridianid/veridian/internal/auth"
)

// Token type discriminators embedded in claims.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims are the registered JWT claims plus a token type discriminator.
// The subject is the account ID; the jti identifies the token for
// revocation.
type Claims struct {
	jwt.RegisteredClaims
	TokenType string `json:"typ"`
}

// RevokedTokenRepository tracks revoked refresh tokens. Rows are keyed by
// jti and carry the token's natural expiry so the denylist can be pruned.
// Account-wide revocation is a watermark: refresh tokens issued before the
// watermark are treated as revoked.
type RevokedTokenRepository interface {
	// Revoke denylists a refresh token by jti until its natural expiry.
	Revoke(ctx context.Context, jti string, accountID ulid.ULID, expiresAt time.Time) error

	// IsRevoked reports whether the jti is on the denylist.
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// RevokeAccount sets the account's revocation watermark.
	RevokeAccount(ctx context.Context, accountID ulid.ULID, at time.Time) error

	// AccountRevokedAt returns the account's revocation watermark, or nil
	// if the account has never been bulk-revoked.
	AccountRevokedAt(ctx context.Context, accountID ulid.ULID) (*time.Time, error)

	// DeleteExpired prunes denylist rows whose tokens have expired and
	// returns the count of deleted records.
	DeleteExpired(ctx context.Context) (int64, error)
}

// Issuer mints and revokes HS256-signed token pairs.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	revoked    RevokedTokenRepository
}

// NewIssuer creates an Issuer. The signing secret and TTLs come from
// deployment configuration.
func NewIssuer(secret []byte, accessTTL, refreshTTL time.Duration, revoked RevokedTokenRepository) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, oops.Errorf("signing secret is required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, oops.Errorf("token TTLs must be positive")
	}
	if revoked == nil {
		return nil, oops.Errorf("revoked token repository is required")
	}
	return &Issuer{secret: secret, accessTTL: accessTTL, refreshTTL: refreshTTL, revoked: revoked}, nil
}

// Issue mints a new access/refresh pair bound to the account.
func (i *Issuer) Issue(ctx context.Context, accountID ulid.ULID) (auth.TokenPair, error) {
	now := time.Now()

	access, err := i.sign(accountID, TypeAccess, now, i.accessTTL)
	if err != nil {
		return auth.TokenPair{}, oops.Code("TOKEN_ISSUE_FAILED").With("type", TypeAccess).Wrap(err)
	}
	refresh, err := i.sign(accountID, TypeRefresh, now, i.refreshTTL)
	if err != nil {
		return auth.TokenPair{}, oops.Code("TOKEN_ISSUE_FAILED").With("type", TypeRefresh).Wrap(err)
	}

	return auth.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (i *Issuer) sign(accountID ulid.ULID, tokenType string, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			ID:        ulid.Make().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TokenType: tokenType,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", oops.With("operation", "sign token").Wrap(err)
	}
	return signed, nil
}

// parse validates signature, expiry, and token type. Every failure collapses
// to auth.ErrInvalidToken so callers cannot distinguish malformed from
// expired from wrong-type tokens.
func (i *Issuer) parse(tokenString, wantType string) (*Claims, ulid.ULID, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, oops.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ulid.ULID{}, auth.ErrInvalidToken
	}
	if claims.TokenType != wantType {
		return nil, ulid.ULID{}, auth.ErrInvalidToken
	}
	accountID, err := ulid.Parse(claims.Subject)
	if err != nil {
		return nil, ulid.ULID{}, auth.ErrInvalidToken
	}
	return claims, accountID, nil
}

// VerifyAccess validates an access token and returns the bound account ID.
// Verification is stateless; the denylist applies only to refresh tokens.
func (i *Issuer) VerifyAccess(_ context.Context, tokenString string) (ulid.ULID, error) {
	_, accountID, err := i.parse(tokenString, TypeAccess)
	if err != nil {
		return ulid.ULID{}, err
	}
	return accountID, nil
}

// checkRefresh validates a refresh token against signature, expiry, the
// denylist, and the account revocation watermark.
func (i *Issuer) checkRefresh(ctx context.Context, tokenString string) (*Claims, ulid.ULID, error) {
	claims, accountID, err := i.parse(tokenString, TypeRefresh)
	if err != nil {
		return nil, ulid.ULID{}, err
	}

	revoked, err := i.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, ulid.ULID{}, oops.Code("TOKEN_CHECK_FAILED").With("operation", "denylist lookup").Wrap(err)
	}
	if revoked {
		return nil, ulid.ULID{}, auth.ErrInvalidToken
	}

	watermark, err := i.revoked.AccountRevokedAt(ctx, accountID)
	if err != nil {
		return nil, ulid.ULID{}, oops.Code("TOKEN_CHECK_FAILED").With("operation", "watermark lookup").Wrap(err)
	}
	if watermark != nil && claims.IssuedAt != nil && claims.IssuedAt.Time.Before(*watermark) {
		return nil, ulid.ULID{}, auth.ErrInvalidToken
	}

	return claims, accountID, nil
}

// Revoke denylists a refresh token. Parse and validation failures, expired
// tokens, and already-revoked tokens all yield auth.ErrInvalidToken.
func (i *Issuer) Revoke(ctx context.Context, refreshToken string) error {
	claims, accountID, err := i.checkRefresh(ctx, refreshToken)
	if err != nil {
		return err
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := i.revoked.Revoke(ctx, claims.ID, accountID, expiresAt); err != nil {
		return oops.Code("TOKEN_REVOKE_FAILED").With("jti", claims.ID).Wrap(err)
	}
	return nil
}

// RevokeAllForAccount invalidates every refresh token issued to the account
// before now by moving its revocation watermark.
func (i *Issuer) RevokeAllForAccount(ctx context.Context, accountID ulid.ULID) error {
	if err := i.revoked.RevokeAccount(ctx, accountID, time.Now()); err != nil {
		return oops.Code("TOKEN_REVOKE_ALL_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return nil
}

// Rotate exchanges a valid refresh token for a fresh pair, revoking the old
// token so each refresh token is single-use.
func (i *Issuer) Rotate(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	claims, accountID, err := i.checkRefresh(ctx, refreshToken)
	if err != nil {
		return auth.TokenPair{}, err
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := i.revoked.Revoke(ctx, claims.ID, accountID, expiresAt); err != nil {
		return auth.TokenPair{}, oops.Code("TOKEN_ROTATE_FAILED").With("operation", "revoke old token").Wrap(err)
	}

	pair, err := i.Issue(ctx, accountID)
	if err != nil {
		return auth.TokenPair{}, oops.Code("TOKEN_ROTATE_FAILED").With("operation", "issue new pair").Wrap(err)
	}
	return pair, nil
}

// Compile-time interface check.
var _ auth.TokenIssuer = (*Issuer)(nil)
