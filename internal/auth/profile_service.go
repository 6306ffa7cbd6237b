// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ProfileUpdate is a partial update of the mutable profile subset.
// Nil fields are left untouched. Email and the name-set latch are never
// accepted as input.
type ProfileUpdate struct {
	Username    *string
	DisplayName *string
}

// ProfileService updates the mutable profile subset of an account.
type ProfileService struct {
	accounts AccountRepository
}

// NewProfileService creates a new ProfileService.
func NewProfileService(accounts AccountRepository) (*ProfileService, error) {
	if accounts == nil {
		return nil, oops.Errorf("accounts repository is required")
	}
	return &ProfileService{accounts: accounts}, nil
}

// Update applies a partial profile update to the authenticated account.
// A username, if present, is validated and normalized exactly as in
// registration, with uniqueness checked against every record but the
// account's own. A display name present in the update latches NameSet to
// true, even when the value is unchanged or the latch was already set.
func (s *ProfileService) Update(ctx context.Context, accountID ulid.ULID, update ProfileUpdate) (PublicAccount, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return PublicAccount{}, ErrNotFound
		}
		return PublicAccount{}, oops.Code("PROFILE_UPDATE_FAILED").
			With("operation", "get account").
			With("account_id", accountID.String()).
			Wrap(err)
	}

	if update.Username != nil {
		if err := ValidateUsername(*update.Username); err != nil {
			var fe FieldError
			if errors.As(err, &fe) {
				return PublicAccount{}, FieldErrors{fe}
			}
			return PublicAccount{}, oops.Code("PROFILE_UPDATE_FAILED").With("operation", "validate username").Wrap(err)
		}
		normalized := NormalizeUsername(*update.Username)
		taken, err := s.accounts.UsernameExists(ctx, normalized, account.ID)
		if err != nil {
			return PublicAccount{}, oops.Code("PROFILE_UPDATE_FAILED").With("operation", "check username").Wrap(err)
		}
		if taken {
			return PublicAccount{}, FieldErrors{{
				Field:   "username",
				Code:    CodeUsernameTaken,
				Message: "This username is already taken. Please choose another.",
			}}
		}
		account.Username = normalized
	}

	if update.DisplayName != nil {
		account.DisplayName = *update.DisplayName
		account.NameSet = true
	}

	account.UpdatedAt = time.Now()

	if err := s.accounts.Update(ctx, account); err != nil {
		if errors.Is(err, ErrUsernameExists) {
			return PublicAccount{}, FieldErrors{{
				Field:   "username",
				Code:    CodeUsernameTaken,
				Message: "This username is already taken. Please choose another.",
			}}
		}
		return PublicAccount{}, oops.Code("PROFILE_UPDATE_FAILED").
			With("operation", "update account").
			With("account_id", accountID.String()).
			Wrap(err)
	}

	return account.Public(), nil
}
