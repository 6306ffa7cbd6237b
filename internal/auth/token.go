// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

package auth

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"
)

// ErrInvalidToken is returned for any token that cannot be accepted:
// malformed, expired, wrong type, or already revoked. The cases are
// deliberately indistinguishable to the caller.
var ErrInvalidToken = errors.New("invalid token")

// TokenPair is the access/refresh credential pair issued on registration
// and login. Both tokens are opaque to this package; only the issuer
// understands their structure.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenIssuer mints and revokes token pairs bound to an account identity.
// Implementations sign tokens so tampering is detectable; expiry durations
// and signing scheme are deployment configuration.
type TokenIssuer interface {
	// Issue mints a new access/refresh pair for the account.
	Issue(ctx context.Context, accountID ulid.ULID) (TokenPair, error)

	// Revoke permanently invalidates a refresh token. Any parse or
	// validation failure yields ErrInvalidToken.
	Revoke(ctx context.Context, refreshToken string) error

	// RevokeAllForAccount invalidates every outstanding refresh token for
	// the account. Used when password rotation is configured to end
	// existing sessions.
	RevokeAllForAccount(ctx context.Context, accountID ulid.ULID) error
}
