// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

// Package httpapi binds the credential core to an HTTP JSON API.
//
// The core services stay transport-agnostic; this package owns request
// decoding, per-field error payloads, bearer-token authentication, and the
// development-mode auto-login bypass.
package httpapi

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/veridianid/veridian/internal/auth"
)

// AccessVerifier validates access tokens for protected routes.
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, token string) (ulid.ULID, error)
}

// TokenRotator exchanges a refresh token for a fresh pair.
type TokenRotator interface {
	Rotate(ctx context.Context, refreshToken string) (auth.TokenPair, error)
}

// Services bundles the credential core consumed by the HTTP layer.
type Services struct {
	Registration *auth.RegistrationService
	Auth         *auth.AuthService
	Profile      *auth.ProfileService
	Password     *auth.PasswordService
	Session      *auth.SessionService
}

// Server serves the credential API over HTTP.
type Server struct {
	addr     string
	services Services
	verifier AccessVerifier
	rotator  TokenRotator
	// devBypass enables the development-mode auto-login middleware. It is
	// wired from configuration at startup and must never be enabled in
	// production.
	devBypass bool
	accounts  auth.AccountRepository
	hasher    auth.PasswordHasher
	logger    *slog.Logger

	tlsConfig  *tls.Config
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates the API server. accounts and hasher are needed only by
// the dev bypass to auto-provision its placeholder identity.
func NewServer(addr string, services Services, verifier AccessVerifier, rotator TokenRotator, devBypass bool, accounts auth.AccountRepository, hasher auth.PasswordHasher, logger *slog.Logger) (*Server, error) {
	if services.Registration == nil || services.Auth == nil || services.Profile == nil || services.Password == nil || services.Session == nil {
		return nil, oops.Errorf("all services are required")
	}
	if verifier == nil {
		return nil, oops.Errorf("access verifier is required")
	}
	if rotator == nil {
		return nil, oops.Errorf("token rotator is required")
	}
	if accounts == nil {
		return nil, oops.Errorf("accounts repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:      addr,
		services:  services,
		verifier:  verifier,
		rotator:   rotator,
		devBypass: devBypass,
		accounts:  accounts,
		hasher:    hasher,
		logger:    logger,
	}, nil
}

// UseTLS configures the server to terminate TLS on its listener. It must
// be called before Start.
func (s *Server) UseTLS(cfg *tls.Config) {
	s.tlsConfig = cfg
}

// Handler builds the route table. Exposed for httptest-based tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)
	mux.Handle("POST /api/auth/logout", s.requireAuth(http.HandlerFunc(s.handleLogout)))
	mux.Handle("POST /api/auth/password", s.requireAuth(http.HandlerFunc(s.handleChangePassword)))
	mux.Handle("GET /api/users/me", s.requireAuth(http.HandlerFunc(s.handleGetSelf)))
	mux.Handle("PATCH /api/users/me", s.requireAuth(http.HandlerFunc(s.handleUpdateProfile)))

	return mux
}

// Start begins serving the API. It returns an error channel that receives
// any error from the HTTP server after startup; the channel is closed when
// the server stops gracefully.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	if s.tlsConfig != nil {
		listener = tls.NewListener(listener, s.tlsConfig)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started",
		"addr", listener.Addr().String(),
		"tls", s.tlsConfig != nil,
		"dev_bypass", s.devBypass,
	)
	if s.devBypass {
		s.logger.Warn("authentication bypass is enabled; do not run this configuration in production")
	}
	return errCh, nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}
	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the address the server is listening on.
// Returns empty string if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
