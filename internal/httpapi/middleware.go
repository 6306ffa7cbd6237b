// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/veridianid/veridian/internal/auth"
)

// Fixed placeholder identity attached by the development-mode bypass.
const (
	devBypassUsername = "testuser"
	devBypassEmail    = "test@example.com"
)

type contextKey struct{ name string }

var accountIDKey = contextKey{"account_id"}

// accountIDFrom returns the authenticated account ID from the request context.
func accountIDFrom(ctx context.Context) (ulid.ULID, bool) {
	id, ok := ctx.Value(accountIDKey).(ulid.ULID)
	return id, ok
}

// requireAuth authenticates the request via a bearer access token and puts
// the account ID on the context. With the dev bypass enabled, a request
// carrying no credentials is attached to an auto-provisioned placeholder
// account instead of being rejected; a request that does present a token is
// still verified normally.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			if s.devBypass {
				account, err := s.devIdentity(r.Context())
				if err != nil {
					s.writeError(w, r, err)
					return
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountIDKey, account.ID)))
				return
			}
			s.writeAuthRequired(w)
			return
		}

		accountID, err := s.verifier.VerifyAccess(r.Context(), tokenString)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				s.writeAuthRequired(w)
				return
			}
			s.writeError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountIDKey, accountID)))
	})
}

// bearerToken extracts the token from an "Authorization: Bearer ..." header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

// devIdentity returns the placeholder account, creating it on first use.
// Concurrent first requests may race on creation; the loser re-reads the
// winner's row.
func (s *Server) devIdentity(ctx context.Context) (*auth.Account, error) {
	account, err := s.accounts.GetByUsername(ctx, devBypassUsername)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, auth.ErrNotFound) {
		return nil, err
	}

	// The placeholder gets an unguessable random password; nobody logs in
	// as it through the normal path.
	hash, err := s.hasher.Hash(ulid.Make().String())
	if err != nil {
		return nil, err
	}
	account, err = auth.NewAccount(devBypassUsername, devBypassEmail, hash)
	if err != nil {
		return nil, err
	}
	if createErr := s.accounts.Create(ctx, account); createErr != nil {
		if errors.Is(createErr, auth.ErrUsernameExists) || errors.Is(createErr, auth.ErrEmailExists) {
			return s.accounts.GetByUsername(ctx, devBypassUsername)
		}
		return nil, createErr
	}
	return account, nil
}
