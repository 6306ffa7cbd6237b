// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// dummyPasswordHash is used when no account matches the identifier so that
// password verification still runs and response time stays consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// AuthService authenticates identifier+password pairs and issues tokens.
type AuthService struct {
	accounts AccountRepository
	hasher   PasswordHasher
	issuer   TokenIssuer
	logger   *slog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(accounts AccountRepository, hasher PasswordHasher, issuer TokenIssuer) (*AuthService, error) {
	return NewAuthServiceWithLogger(accounts, hasher, issuer, slog.Default())
}

// NewAuthServiceWithLogger creates an AuthService with a custom logger.
func NewAuthServiceWithLogger(accounts AccountRepository, hasher PasswordHasher, issuer TokenIssuer, logger *slog.Logger) (*AuthService, error) {
	if accounts == nil {
		return nil, oops.Errorf("accounts repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if issuer == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &AuthService{accounts: accounts, hasher: hasher, issuer: issuer, logger: logger}, nil
}

// resolveIdentifier looks up an account by login identifier. The lowercased
// identifier is matched against the stored username (usernames are lowercase
// at rest) and the identifier as given is matched against the stored email.
// The error payload never reveals which of the two fields matched.
func (s *AuthService) resolveIdentifier(ctx context.Context, identifier string) (*Account, error) {
	account, err := s.accounts.GetByUsername(ctx, NormalizeUsername(identifier))
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.accounts.GetByEmail(ctx, identifier)
}

// Login authenticates an identifier+password pair and issues a token pair.
// The identifier may be a username (any case) or an email (exact case).
// Failure modes are distinguishable to the client: unknown identifier,
// wrong password, and inactive account each produce their own field error.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*AuthResult, error) {
	account, lookupErr := s.resolveIdentifier(ctx, identifier)

	// Verify against a dummy hash when no account matched so response time
	// stays consistent and usernames cannot be enumerated by timing.
	targetHash := dummyPasswordHash
	accountExists := false
	if lookupErr == nil {
		targetHash = account.PasswordHash
		accountExists = true
	} else if !errors.Is(lookupErr, ErrNotFound) {
		return nil, oops.Code("LOGIN_FAILED").With("operation", "resolve identifier").Wrap(lookupErr)
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil && accountExists {
		return nil, oops.Code("LOGIN_FAILED").With("operation", "verify password").Wrap(verifyErr)
	}

	if !accountExists {
		RecordLogin("no_such_account")
		return nil, FieldErrors{{
			Field:   "identifier",
			Code:    CodeNoSuchAccount,
			Message: "No account found with that username or email.",
		}}
	}
	if !valid {
		RecordLogin("bad_password")
		return nil, FieldErrors{{
			Field:   "password",
			Code:    CodeBadPassword,
			Message: "Incorrect password. Please try again.",
		}}
	}
	if !account.Active {
		RecordLogin("inactive")
		return nil, FieldErrors{{
			Field:   "general",
			Code:    CodeAccountInactive,
			Message: "Your account is inactive. Please contact support.",
		}}
	}

	// Transparently upgrade legacy hashes on successful login.
	// Ignore errors - login succeeds regardless.
	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		if newHash, hashErr := s.hasher.Hash(password); hashErr == nil {
			//nolint:errcheck // Best effort, login succeeds regardless
			s.accounts.UpdatePassword(ctx, account.ID, newHash)
		}
	}

	tokens, err := s.issuer.Issue(ctx, account.ID)
	if err != nil {
		return nil, oops.Code("LOGIN_FAILED").With("operation", "issue tokens").Wrap(err)
	}

	s.logger.Info("login succeeded", "account_id", account.ID.String())
	RecordLogin("success")

	return &AuthResult{Account: account.Public(), Tokens: tokens}, nil
}

// GetSelf returns the public view of an authenticated account.
func (s *AuthService) GetSelf(ctx context.Context, accountID ulid.ULID) (PublicAccount, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return PublicAccount{}, ErrNotFound
		}
		return PublicAccount{}, oops.Code("GET_SELF_FAILED").With("account_id", accountID.String()).Wrap(err)
	}
	return account.Public(), nil
}
