// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/veridianid/veridian/internal/auth"
	authpg "github.com/veridianid/veridian/internal/auth/postgres"
	"github.com/veridianid/veridian/internal/httpapi"
	"github.com/veridianid/veridian/internal/store"
	"github.com/veridianid/veridian/internal/token"
	tokenpg "github.com/veridianid/veridian/internal/token/postgres"
)

var (
	testCtx       context.Context
	testCancel    context.CancelFunc
	pgContainer   testcontainers.Container
	pool          *pgxpool.Pool
	apiServer     *httptest.Server
	accountSerial atomic.Int64
)

var _ = BeforeSuite(func() {
	testCtx, testCancel = context.WithTimeout(context.Background(), 5*time.Minute)

	container, err := postgres.Run(testCtx,
		"postgres:18-alpine",
		postgres.WithDatabase("veridian_test"),
		postgres.WithUsername("veridian"),
		postgres.WithPassword("veridian"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	Expect(err).NotTo(HaveOccurred())
	pgContainer = container

	connStr, err := container.ConnectionString(testCtx, "sslmode=disable")
	Expect(err).NotTo(HaveOccurred())

	migrator, err := store.NewMigrator(connStr)
	Expect(err).NotTo(HaveOccurred())
	Expect(migrator.Up()).To(Succeed())
	Expect(migrator.Close()).To(Succeed())

	pool, err = store.Open(testCtx, connStr)
	Expect(err).NotTo(HaveOccurred())

	accounts := authpg.NewAccountRepository(pool)
	revoked := tokenpg.NewRevokedTokenRepository(pool)
	hasher := auth.NewArgon2idHasher()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	issuer, err := token.NewIssuer([]byte("integration-secret"), 15*time.Minute, time.Hour, revoked)
	Expect(err).NotTo(HaveOccurred())

	registration, err := auth.NewRegistrationServiceWithLogger(accounts, hasher, issuer, logger)
	Expect(err).NotTo(HaveOccurred())
	authSvc, err := auth.NewAuthServiceWithLogger(accounts, hasher, issuer, logger)
	Expect(err).NotTo(HaveOccurred())
	profile, err := auth.NewProfileService(accounts)
	Expect(err).NotTo(HaveOccurred())
	password, err := auth.NewPasswordServiceWithLogger(accounts, hasher, issuer, false, logger)
	Expect(err).NotTo(HaveOccurred())
	session, err := auth.NewSessionServiceWithLogger(issuer, logger)
	Expect(err).NotTo(HaveOccurred())

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
		false,
		accounts,
		hasher,
		logger,
	)
	Expect(err).NotTo(HaveOccurred())

	apiServer = httptest.NewServer(server.Handler())
})

var _ = AfterSuite(func() {
	if apiServer != nil {
		apiServer.Close()
	}
	if pool != nil {
		pool.Close()
	}
	if pgContainer != nil {
		Expect(pgContainer.Terminate(testCtx)).To(Succeed())
	}
	if testCancel != nil {
		testCancel()
	}
})

// call sends a JSON request against the API and decodes the response body.
func call(method, path, bearer string, body any) (int, map[string]any) {
	GinkgoHelper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, apiServer.URL+path, reader)
	Expect(err).NotTo(HaveOccurred())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := apiServer.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())

	var decoded map[string]any
	if len(bytes.TrimSpace(raw)) > 0 {
		Expect(json.Unmarshal(raw, &decoded)).To(Succeed(), "body: %s", raw)
	}
	return resp.StatusCode, decoded
}

// uniqueName returns a username unique within the suite run.
func uniqueName(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, accountSerial.Add(1))
}

// registerAccount registers a fresh account and returns its username and
// token pair.
func registerAccount(prefix string) (username, access, refresh string) {
	GinkgoHelper()
	username = uniqueName(prefix)
	status, body := call(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username":         username,
		"email":            username + "@example.com",
		"password":         "password123",
		"confirm_password": "password123",
	})
	Expect(status).To(Equal(http.StatusCreated), "register failed: %v", body)
	return username, body["access"].(string), body["refresh"].(string)
}

var _ = Describe("Credential API", func() {
	Describe("registration", func() {
		It("creates an account and returns a working token pair", func() {
			username, access, _ := registerAccount("reg")

			status, body := call(http.MethodGet, "/api/users/me", access, nil)
			Expect(status).To(Equal(http.StatusOK))
			Expect(body["username"]).To(Equal(username))
			Expect(body["name_set"]).To(Equal(false))
		})

		It("rejects a duplicate username case-insensitively", func() {
			username, _, _ := registerAccount("dup")

			status, body := call(http.MethodPost, "/api/auth/register", "", map[string]string{
				"username":         "DUP" + username[3:],
				"email":            "other-" + username + "@example.com",
				"password":         "password123",
				"confirm_password": "password123",
			})
			Expect(status).To(Equal(http.StatusBadRequest))
			Expect(body).To(HaveKey("username"))
		})

		It("rejects a duplicate email", func() {
			username, _, _ := registerAccount("dupemail")

			status, body := call(http.MethodPost, "/api/auth/register", "", map[string]string{
				"username":         uniqueName("dupemail"),
				"email":            username + "@example.com",
				"password":         "password123",
				"confirm_password": "password123",
			})
			Expect(status).To(Equal(http.StatusBadRequest))
			Expect(body).To(HaveKey("email"))
		})
	})

	Describe("login", func() {
		It("authenticates by username regardless of case", func() {
			username, _, _ := registerAccount("login")

			status, body := call(http.MethodPost, "/api/auth/login", "", map[string]string{
				"identifier": "LOGIN" + username[5:],
				"password":   "password123",
			})
			Expect(status).To(Equal(http.StatusOK))
			Expect(body["user"].(map[string]any)["username"]).To(Equal(username))
		})

		It("authenticates by email", func() {
			username, _, _ := registerAccount("email")

			status, _ := call(http.MethodPost, "/api/auth/login", "", map[string]string{
				"identifier": username + "@example.com",
				"password":   "password123",
			})
			Expect(status).To(Equal(http.StatusOK))
		})

		It("rejects a wrong password", func() {
			username, _, _ := registerAccount("badpw")

			status, body := call(http.MethodPost, "/api/auth/login", "", map[string]string{
				"identifier": username,
				"password":   "wrongpassword",
			})
			Expect(status).To(Equal(http.StatusBadRequest))
			Expect(body).To(HaveKey("password"))
		})
	})

	Describe("token lifecycle", func() {
		It("rotates refresh tokens and retires the old one", func() {
			_, _, refresh := registerAccount("rotate")

			status, body := call(http.MethodPost, "/api/auth/refresh", "", map[string]string{
				"refresh": refresh,
			})
			Expect(status).To(Equal(http.StatusOK))
			Expect(body["refresh"]).NotTo(Equal(refresh))

			status, _ = call(http.MethodPost, "/api/auth/refresh", "", map[string]string{
				"refresh": refresh,
			})
			Expect(status).To(Equal(http.StatusBadRequest))
		})

		It("revokes the refresh token on logout", func() {
			_, access, refresh := registerAccount("logout")

			status, _ := call(http.MethodPost, "/api/auth/logout", access, map[string]string{
				"refresh": refresh,
			})
			Expect(status).To(Equal(http.StatusResetContent))

			status, _ = call(http.MethodPost, "/api/auth/refresh", "", map[string]string{
				"refresh": refresh,
			})
			Expect(status).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("profile", func() {
		It("latches name_set once a display name is written", func() {
			_, access, _ := registerAccount("profile")

			status, body := call(http.MethodPatch, "/api/users/me", access, map[string]string{
				"name": "Integration Tester",
			})
			Expect(status).To(Equal(http.StatusOK))
			Expect(body["name_set"]).To(Equal(true))

			newName := uniqueName("renamed")
			status, body = call(http.MethodPatch, "/api/users/me", access, map[string]string{
				"username": newName,
			})
			Expect(status).To(Equal(http.StatusOK))
			Expect(body["username"]).To(Equal(newName))
			Expect(body["name_set"]).To(Equal(true))
		})
	})

	Describe("password change", func() {
		It("accepts the new password on the next login", func() {
			username, access, _ := registerAccount("chpw")

			status, body := call(http.MethodPost, "/api/auth/password", access, map[string]string{
				"old_password":         "password123",
				"new_password":         "newpassword456",
				"confirm_new_password": "newpassword456",
			})
			Expect(status).To(Equal(http.StatusOK))
			Expect(body["message"]).To(Equal("Password updated successfully"))

			status, _ = call(http.MethodPost, "/api/auth/login", "", map[string]string{
				"identifier": username,
				"password":   "newpassword456",
			})
			Expect(status).To(Equal(http.StatusOK))
		})
	})
})
