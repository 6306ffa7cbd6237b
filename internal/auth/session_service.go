// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
)

// SessionService terminates sessions by revoking refresh tokens.
type SessionService struct {
	issuer TokenIssuer
	logger *slog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(issuer TokenIssuer) (*SessionService, error) {
	return NewSessionServiceWithLogger(issuer, slog.Default())
}

// NewSessionServiceWithLogger creates a SessionService with a custom logger.
func NewSessionServiceWithLogger(issuer TokenIssuer, logger *slog.Logger) (*SessionService, error) {
	if issuer == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &SessionService{issuer: issuer, logger: logger}, nil
}

// Terminate revokes the supplied refresh token so it can never again be
// exchanged for a new access token. Malformed, expired, and already-revoked
// tokens all fail with the same ErrInvalidToken; revocation is idempotent
// from the client's perspective and never retried.
func (s *SessionService) Terminate(ctx context.Context, refreshToken string) error {
	if err := s.issuer.Revoke(ctx, refreshToken); err != nil {
		if errors.Is(err, ErrInvalidToken) {
			RecordRevocation("invalid")
			return ErrInvalidToken
		}
		return oops.Code("LOGOUT_FAILED").With("operation", "revoke refresh token").Wrap(err)
	}

	s.logger.Info("session terminated")
	RecordRevocation("revoked")
	return nil
}
