// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MinPasswordLength is the minimum accepted password length, in characters.
const MinPasswordLength = 8

// zeroULID is passed to UsernameExists when no record should be excluded.
var zeroULID ulid.ULID

// usernameRegex matches usernames containing only letters, numbers, and
// underscores. Usernames are stored lowercase; matching is done on the raw
// input so the rule reads the same to the user regardless of case.
var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Account represents a credential-bearing user account.
type Account struct {
	ID           ulid.ULID
	Username     string // always lowercase at rest
	Email        string // unique, stored as given
	PasswordHash string
	DisplayName  string
	NameSet      bool // latches true the first time DisplayName is written
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewAccount creates a validated Account with a normalized username.
// The password hash must already be produced by a PasswordHasher.
func NewAccount(username, email, passwordHash string) (*Account, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("ACCOUNT_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	now := time.Now()
	return &Account{
		ID:           ulid.Make(),
		Username:     NormalizeUsername(username),
		Email:        email,
		PasswordHash: passwordHash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeUsername lowercases a username to its at-rest form.
func NormalizeUsername(username string) string {
	return strings.ToLower(username)
}

// ValidateUsername validates a username against format rules. Usernames may
// contain only letters, numbers, and underscores.
func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return FieldError{
			Field:   "username",
			Code:    CodeInvalidUsernameFormat,
			Message: "Username can only contain letters, numbers, and underscores.",
		}
	}
	return nil
}

// PublicAccount is the subset of Account fields safe to return to clients.
// The password hash is never exposed.
type PublicAccount struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"name"`
	NameSet     bool   `json:"name_set"`
}

// Public returns the client-visible view of the account.
func (a *Account) Public() PublicAccount {
	return PublicAccount{
		ID:          a.ID.String(),
		Username:    a.Username,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		NameSet:     a.NameSet,
	}
}

// AccountRepository manages account persistence. Storage-level unique
// constraints on username and email are the authoritative uniqueness guard;
// service-level existence checks only shape user-facing errors.
type AccountRepository interface {
	// Create stores a new account. Returns ErrUsernameExists or
	// ErrEmailExists when a unique constraint is violated.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByUsername retrieves an account by its normalized username.
	// The lookup compares the lowercased input against the stored form.
	GetByUsername(ctx context.Context, username string) (*Account, error)

	// GetByEmail retrieves an account by exact email match.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// UsernameExists reports whether the normalized username is taken.
	// A non-zero excludeID ignores that account's own record.
	UsernameExists(ctx context.Context, username string, excludeID ulid.ULID) (bool, error)

	// EmailExists reports whether the email is taken (exact match).
	EmailExists(ctx context.Context, email string) (bool, error)

	// Update persists username, display name, and name-set changes.
	Update(ctx context.Context, account *Account) error

	// UpdatePassword replaces only the password hash.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error
}

// Sentinel errors surfaced by repositories on storage-level unique
// constraint violations. These terminate the check-then-act race in
// concurrent registrations.
var (
	ErrUsernameExists = errors.New("username already exists")
	ErrEmailExists    = errors.New("email already exists")
)
