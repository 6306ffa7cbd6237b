// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"unicode/utf8"

	"github.com/samber/oops"
)

// RegisterInput is the registration request payload.
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// AuthResult is returned by operations that end in token issuance.
type AuthResult struct {
	Account PublicAccount
	Tokens  TokenPair
}

// RegistrationService validates and creates new accounts.
type RegistrationService struct {
	accounts AccountRepository
	hasher   PasswordHasher
	issuer   TokenIssuer
	logger   *slog.Logger
}

// NewRegistrationService creates a new RegistrationService.
func NewRegistrationService(accounts AccountRepository, hasher PasswordHasher, issuer TokenIssuer) (*RegistrationService, error) {
	return NewRegistrationServiceWithLogger(accounts, hasher, issuer, slog.Default())
}

// NewRegistrationServiceWithLogger creates a RegistrationService with a custom logger.
func NewRegistrationServiceWithLogger(accounts AccountRepository, hasher PasswordHasher, issuer TokenIssuer, logger *slog.Logger) (*RegistrationService, error) {
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
	return &RegistrationService{accounts: accounts, hasher: hasher, issuer: issuer, logger: logger}, nil
}

// Register validates the input and creates a new account, issuing a token
// pair on success. Validation failures across independent fields are
// accumulated; the username uniqueness check only runs once the format
// check has passed, so the user sees the format error first.
//
// The existence pre-checks are a UX nicety. The storage layer's unique
// constraints are the authoritative guard: a concurrent registration that
// slips past the pre-check surfaces as ErrUsernameExists/ErrEmailExists
// from Create and is mapped to the same field errors.
func (s *RegistrationService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	var fieldErrs FieldErrors

	if err := ValidateUsername(in.Username); err != nil {
		var fe FieldError
		if errors.As(err, &fe) {
			fieldErrs = append(fieldErrs, fe)
		} else {
			return nil, oops.Code("REGISTER_FAILED").With("operation", "validate username").Wrap(err)
		}
	} else {
		taken, err := s.accounts.UsernameExists(ctx, NormalizeUsername(in.Username), zeroULID)
		if err != nil {
			return nil, oops.Code("REGISTER_FAILED").With("operation", "check username").Wrap(err)
		}
		if taken {
			fieldErrs.Add("username", CodeUsernameTaken, "This username is already taken. Please choose another.")
		}
	}

	emailTaken, err := s.accounts.EmailExists(ctx, in.Email)
	if err != nil {
		return nil, oops.Code("REGISTER_FAILED").With("operation", "check email").Wrap(err)
	}
	if emailTaken {
		fieldErrs.Add("email", CodeEmailTaken, "An account with this email already exists. Try logging in instead.")
	}

	if in.Password != in.ConfirmPassword {
		fieldErrs.Add("password", CodePasswordMismatch, "Passwords do not match. Please try again.")
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		fieldErrs.Add("password", CodePasswordTooShort, "Password must be at least 8 characters long.")
	}

	if len(fieldErrs) > 0 {
		return nil, fieldErrs
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	account, err := NewAccount(in.Username, in.Email, hash)
	if err != nil {
		return nil, oops.Code("REGISTER_FAILED").With("operation", "new account").Wrap(err)
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		// Lost a check-then-act race; report the same error the pre-check would have.
		if errors.Is(err, ErrUsernameExists) {
			return nil, FieldErrors{{Field: "username", Code: CodeUsernameTaken, Message: "This username is already taken. Please choose another."}}
		}
		if errors.Is(err, ErrEmailExists) {
			return nil, FieldErrors{{Field: "email", Code: CodeEmailTaken, Message: "An account with this email already exists. Try logging in instead."}}
		}
		return nil, oops.Code("REGISTER_FAILED").
			With("operation", "create account").
			With("username", account.Username).
			Wrap(err)
	}

	tokens, err := s.issuer.Issue(ctx, account.ID)
	if err != nil {
		return nil, oops.Code("REGISTER_FAILED").With("operation", "issue tokens").Wrap(err)
	}

	s.logger.Info("account registered", "account_id", account.ID.String(), "username", account.Username)
	RecordRegistration()

	return &AuthResult{Account: account.Public(), Tokens: tokens}, nil
}
