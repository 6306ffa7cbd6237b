// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/veridianid/veridian/internal/auth"
	"github.com/veridianid/veridian/internal/httpapi"
	"github.com/veridianid/veridian/internal/token"
)

// memAccountRepo is an in-memory auth.AccountRepository for end-to-end
// handler tests.
type memAccountRepo struct {
	mu       sync.Mutex
	accounts map[ulid.ULID]*auth.Account
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{accounts: make(map[ulid.ULID]*auth.Account)}
}

func (r *memAccountRepo) Create(_ context.Context, account *auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Username == account.Username {
			return auth.ErrUsernameExists
		}
		if a.Email == account.Email {
			return auth.ErrEmailExists
		}
	}
	clone := *account
	r.accounts[account.ID] = &clone
	return nil
}

func (r *memAccountRepo) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		clone := *a
		return &clone, nil
	}
	return nil, auth.ErrNotFound
}

func (r *memAccountRepo) GetByUsername(_ context.Context, username string) (*auth.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Username == username {
			clone := *a
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *memAccountRepo) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email == email {
			clone := *a
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *memAccountRepo) UsernameExists(_ context.Context, username string, excludeID ulid.ULID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Username == username && a.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memAccountRepo) EmailExists(_ context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *memAccountRepo) Update(_ context.Context, account *auth.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[account.ID]; !ok {
		return auth.ErrNotFound
	}
	for _, a := range r.accounts {
		if a.Username == account.Username && a.ID != account.ID {
			return auth.ErrUsernameExists
		}
	}
	clone := *account
	r.accounts[account.ID] = &clone
	return nil
}

func (r *memAccountRepo) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.PasswordHash = passwordHash
	return nil
}

// memRevokedRepo is an in-memory token.RevokedTokenRepository.
type memRevokedRepo struct {
	mu         sync.Mutex
	jtis       map[string]time.Time
	watermarks map[ulid.ULID]time.Time
}

func newMemRevokedRepo() *memRevokedRepo {
	return &memRevokedRepo{
		jtis:       make(map[string]time.Time),
		watermarks: make(map[ulid.ULID]time.Time),
	}
}

func (r *memRevokedRepo) Revoke(_ context.Context, jti string, _ ulid.ULID, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jtis[jti]; !ok {
		r.jtis[jti] = expiresAt
	}
	return nil
}

func (r *memRevokedRepo) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jtis[jti]
	return ok, nil
}

func (r *memRevokedRepo) RevokeAccount(_ context.Context, accountID ulid.ULID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.watermarks[accountID]; !ok || at.After(current) {
		r.watermarks[accountID] = at
	}
	return nil
}

func (r *memRevokedRepo) AccountRevokedAt(_ context.Context, accountID ulid.ULID) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if at, ok := r.watermarks[accountID]; ok {
		return &at, nil
	}
	return nil, nil
}

func (r *memRevokedRepo) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	now := time.Now()
	for jti, expiresAt := range r.jtis {
		if expiresAt.Before(now) {
			delete(r.jtis, jti)
			deleted++
		}
	}
	return deleted, nil
}

// testHarness wires real services onto in-memory storage behind an
// httptest server.
type testHarness struct {
	ts       *httptest.Server
	accounts *memAccountRepo
}

type harnessOptions struct {
	devBypass      bool
	revokeOnChange bool
}

func newHarness(t *testing.T, opts harnessOptions) *testHarness {
	t.Helper()

	accounts := newMemAccountRepo()
	revoked := newMemRevokedRepo()
	hasher := auth.NewArgon2idHasher()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	issuer, err := token.NewIssuer([]byte("test-secret"), 15*time.Minute, time.Hour, revoked)
	require.NoError(t, err)

	registration, err := auth.NewRegistrationServiceWithLogger(accounts, hasher, issuer, logger)
	require.NoError(t, err)
	authSvc, err := auth.NewAuthServiceWithLogger(accounts, hasher, issuer, logger)
	require.NoError(t, err)
	profile, err := auth.NewProfileService(accounts)
	require.NoError(t, err)
	password, err := auth.NewPasswordServiceWithLogger(accounts, hasher, issuer, opts.revokeOnChange, logger)
	require.NoError(t, err)
	session, err := auth.NewSessionServiceWithLogger(issuer, logger)
	require.NoError(t, err)

	server, err := httpapi.NewServer(
		"127.0.0.1:0",
		httpapi.Services{
			Registration: registration,
			Auth:         authSvc,
			Profile:      profile,
			Password:     password,
			Session:      session,
		},
		issuer,
		issuer,
		opts.devBypass,
		accounts,
		hasher,
		logger,
	)
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &testHarness{ts: ts, accounts: accounts}
}

// do sends a JSON request and decodes the JSON response body into a generic map.
func (h *testHarness) do(t *testing.T, method, path, bearer string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, h.ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := h.ts.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	if len(bytes.TrimSpace(raw)) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp.StatusCode, decoded
}

// register creates an account through the API and returns the token pair.
func (h *testHarness) register(t *testing.T, username, email, password string) (access, refresh string) {
	t.Helper()
	status, body := h.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username":         username,
		"email":            email,
		"password":         password,
		"confirm_password": password,
	})
	require.Equal(t, http.StatusCreated, status, "register failed: %v", body)
	return body["access"].(string), body["refresh"].(string)
}
