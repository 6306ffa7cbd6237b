// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

package main

import (
	"context"
	cryptotls "crypto/tls"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/veridianid/veridian/internal/auth"
	authpg "github.com/veridianid/veridian/internal/auth/postgres"
	"github.com/veridianid/veridian/internal/config"
	"github.com/veridianid/veridian/internal/httpapi"
	"github.com/veridianid/veridian/internal/logging"
	"github.com/veridianid/veridian/internal/observability"
	"github.com/veridianid/veridian/internal/store"
	vtls "github.com/veridianid/veridian/internal/tls"
	"github.com/veridianid/veridian/internal/token"
	tokenpg "github.com/veridianid/veridian/internal/token/postgres"
	"github.com/veridianid/veridian/internal/xdg"
)

// shutdownTimeout bounds graceful shutdown of the HTTP servers.
const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the credential API server",
		Long: `Start the HTTP API server exposing registration, login, profile,
password change, and logout, plus an observability endpoint for
metrics and health probes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}

	// Flag names use dashes; they map onto the underscored config keys.
	cmd.Flags().String("http-addr", config.DefaultHTTPAddr, "API listen address")
	cmd.Flags().String("metrics-addr", config.DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection string (default: DATABASE_URL)")
	cmd.Flags().String("log-format", config.DefaultLogFormat, "log format (json or text)")
	cmd.Flags().Bool("auth-disabled", false, "development-only auto-login bypass; never enable in production")
	cmd.Flags().String("token.secret", "", "token signing secret")
	cmd.Flags().Duration("token.access-ttl", config.DefaultAccessTTL, "access token lifetime")
	cmd.Flags().Duration("token.refresh-ttl", config.DefaultRefreshTTL, "refresh token lifetime")
	cmd.Flags().Bool("token.revoke-on-password-change", false, "revoke outstanding refresh tokens when a password changes")
	cmd.Flags().Duration("token.prune-interval", config.DefaultPruneInterval, "how often expired revoked tokens are pruned (0 = disabled)")
	cmd.Flags().Bool("tls.enabled", false, "serve the API over HTTPS")
	cmd.Flags().String("tls.cert-file", "", "TLS certificate file (default: generated dev certificate)")
	cmd.Flags().String("tls.key-file", "", "TLS key file (default: generated dev certificate)")

	return cmd
}

// runServeWithDeps starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.PoolFactory == nil {
		deps.PoolFactory = store.Open
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, rc observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, rc)
		}
	}

	path := configFile
	if path == "" {
		path = xdg.ConfigFile()
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.SetDefault("veridian", version, cfg.LogFormat)

	slog.Info("starting credential service",
		"http_addr", cfg.HTTPAddr,
		"log_format", cfg.LogFormat,
	)

	pool, err := deps.PoolFactory(ctx, cfg.DatabaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	slog.Info("connected to database")

	if cfg.Token.PruneInterval > 0 {
		pruner := token.NewPruner(tokenpg.NewRevokedTokenRepository(pool), cfg.Token.PruneInterval, slog.Default())
		pruner.Start(ctx)
		defer pruner.Stop()
	}

	if deps.APIServerFactory == nil {
		deps.APIServerFactory = func(_ context.Context, pool *pgxpool.Pool) (APIServer, error) {
			return buildAPIServer(cfg, pool)
		}
	}

	apiServer, err := deps.APIServerFactory(ctx, pool)
	if err != nil {
		return oops.Code("SERVER_INIT_FAILED").Wrap(err)
	}

	var obsServer ObservabilityServer
	var obsErrCh <-chan error
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, func() bool {
			return pool.Ping(ctx) == nil
		})
		obsErrCh, err = obsServer.Start()
		if err != nil {
			return oops.Code("SERVER_START_FAILED").With("server", "observability").Wrap(err)
		}
	}

	apiErrCh, err := apiServer.Start()
	if err != nil {
		if obsServer != nil {
			stopServer(obsServer)
		}
		return oops.Code("SERVER_START_FAILED").With("server", "api").Wrap(err)
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-signalCtx.Done():
		slog.Info("shutdown signal received")
	case serveErr := <-apiErrCh:
		if serveErr != nil {
			return oops.Code("SERVER_FAILED").With("server", "api").Wrap(serveErr)
		}
	case serveErr := <-obsErrCh:
		if serveErr != nil {
			return oops.Code("SERVER_FAILED").With("server", "observability").Wrap(serveErr)
		}
	}

	stopServer(apiServer)
	if obsServer != nil {
		stopServer(obsServer)
	}
	return nil
}

func stopServer(s interface {
	Stop(ctx context.Context) error
}) {
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
}

// buildAPIServer wires repositories, services, and the token issuer onto
// the shared pool.
func buildAPIServer(cfg *config.Config, pool *pgxpool.Pool) (*httpapi.Server, error) {
	accounts := authpg.NewAccountRepository(pool)
	revoked := tokenpg.NewRevokedTokenRepository(pool)
	hasher := auth.NewArgon2idHasher()

	issuer, err := token.NewIssuer([]byte(cfg.Token.Secret), cfg.Token.AccessTTL, cfg.Token.RefreshTTL, revoked)
	if err != nil {
		return nil, err
	}

	registration, err := auth.NewRegistrationService(accounts, hasher, issuer)
	if err != nil {
		return nil, err
	}
	authSvc, err := auth.NewAuthService(accounts, hasher, issuer)
	if err != nil {
		return nil, err
	}
	profile, err := auth.NewProfileService(accounts)
	if err != nil {
		return nil, err
	}
	password, err := auth.NewPasswordService(accounts, hasher, issuer, cfg.Token.RevokeOnPasswordChange)
	if err != nil {
		return nil, err
	}
	session, err := auth.NewSessionService(issuer)
	if err != nil {
		return nil, err
	}

	server, err := httpapi.NewServer(
		cfg.HTTPAddr,
		httpapi.Services{
			Registration: registration,
			Auth:         authSvc,
			Profile:      profile,
			Password:     password,
			Session:      session,
		},
		issuer,
		issuer,
		cfg.AuthDisabled,
		accounts,
		hasher,
		slog.Default(),
	)
	if err != nil {
		return nil, err
	}

	if cfg.TLS.Enabled {
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		server.UseTLS(tlsConfig)
	}
	return server, nil
}

// buildTLSConfig loads the configured keypair, generating a development
// certificate under the XDG certs directory when none is configured.
func buildTLSConfig(cfg *config.Config) (*cryptotls.Config, error) {
	certFile, keyFile := cfg.TLS.CertFile, cfg.TLS.KeyFile
	if certFile == "" {
		var err error
		certFile, keyFile, err = vtls.EnsureServerCert(xdg.CertsDir(), vtls.APICertName, nil)
		if err != nil {
			return nil, oops.Code("TLS_SETUP_FAILED").With("operation", "generate dev certificate").Wrap(err)
		}
		slog.Info("using development TLS certificate", "cert", certFile)
	}

	cert, err := cryptotls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, oops.Code("TLS_SETUP_FAILED").With("cert", certFile).With("key", keyFile).Wrap(err)
	}
	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{cert},
		MinVersion:   cryptotls.VersionTLS12,
	}, nil
}
