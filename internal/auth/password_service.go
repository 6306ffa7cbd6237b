// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// PasswordChangeInput is the password rotation request payload.
type PasswordChangeInput struct {
	OldPassword        string
	NewPassword        string
	ConfirmNewPassword string
}

// PasswordService rotates an account's password under constraints.
type PasswordService struct {
	accounts AccountRepository
	hasher   PasswordHasher
	issuer   TokenIssuer
	// revokeOnChange controls whether outstanding refresh tokens are
	// revoked when the password changes. Already-issued access tokens
	// always remain valid until natural expiry.
	revokeOnChange bool
	logger         *slog.Logger
}

// NewPasswordService creates a new PasswordService. When revokeOnChange is
// true, a successful change revokes all of the account's refresh tokens.
func NewPasswordService(accounts AccountRepository, hasher PasswordHasher, issuer TokenIssuer, revokeOnChange bool) (*PasswordService, error) {
	return NewPasswordServiceWithLogger(accounts, hasher, issuer, revokeOnChange, slog.Default())
}

// NewPasswordServiceWithLogger creates a PasswordService with a custom logger.
func NewPasswordServiceWithLogger(accounts AccountRepository, hasher PasswordHasher, issuer TokenIssuer, revokeOnChange bool, logger *slog.Logger) (*PasswordService, error) {
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
	return &PasswordService{
		accounts:       accounts,
		hasher:         hasher,
		issuer:         issuer,
		revokeOnChange: revokeOnChange,
		logger:         logger,
	}, nil
}

// Change rotates the account's password. Checks run in order: new-password
// confirmation, new-password length, old-password verification, and finally
// a plaintext comparison rejecting a no-op change. A failed change leaves
// the stored hash untouched.
func (s *PasswordService) Change(ctx context.Context, accountID ulid.ULID, in PasswordChangeInput) error {
	var fieldErrs FieldErrors
	if in.NewPassword != in.ConfirmNewPassword {
		fieldErrs.Add("new_password", CodeNewPasswordMismatch, "New passwords do not match.")
	}
	if utf8.RuneCountInString(in.NewPassword) < MinPasswordLength {
		fieldErrs.Add("new_password", CodeNewPasswordTooShort, "Password must be at least 8 characters long.")
	}
	if len(fieldErrs) > 0 {
		return fieldErrs
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return oops.Code("PASSWORD_CHANGE_FAILED").
			With("operation", "get account").
			With("account_id", accountID.String()).
			Wrap(err)
	}

	valid, err := s.hasher.Verify(in.OldPassword, account.PasswordHash)
	if err != nil {
		return oops.Code("PASSWORD_CHANGE_FAILED").With("operation", "verify old password").Wrap(err)
	}
	if !valid {
		return FieldErrors{{
			Field:   "old_password",
			Code:    CodeOldPasswordIncorrect,
			Message: "Your current password is incorrect.",
		}}
	}

	// Compared as plaintext: two equal passwords hash differently, so the
	// hashes cannot be compared for this check.
	if in.OldPassword == in.NewPassword {
		return FieldErrors{{
			Field:   "new_password",
			Code:    CodePasswordUnchanged,
			Message: "New password must be different from your current password.",
		}}
	}

	newHash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return oops.Code("PASSWORD_CHANGE_FAILED").With("operation", "hash new password").Wrap(err)
	}

	if err := s.accounts.UpdatePassword(ctx, account.ID, newHash); err != nil {
		return oops.Code("PASSWORD_CHANGE_FAILED").
			With("operation", "update password").
			With("account_id", account.ID.String()).
			Wrap(err)
	}

	if s.revokeOnChange {
		// Refresh tokens die with the old password; access tokens run out
		// their natural expiry either way.
		if err := s.issuer.RevokeAllForAccount(ctx, account.ID); err != nil {
			return oops.Code("PASSWORD_CHANGE_FAILED").
				With("operation", "revoke refresh tokens").
				With("account_id", account.ID.String()).
				Wrap(err)
		}
	}

	s.logger.Info("password changed", "account_id", account.ID.String(), "revoked_sessions", s.revokeOnChange)
	return nil
}
