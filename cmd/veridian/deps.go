// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridianid/veridian/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolFactory connects the database pool.
	// Default: store.Open
	PoolFactory func(ctx context.Context, dsn string) (*pgxpool.Pool, error)

	// APIServerFactory creates the credential API server.
	// Default: buildAPIServer
	APIServerFactory func(ctx context.Context, pool *pgxpool.Pool) (APIServer, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer
}

// APIServer interface wraps the methods used from httpapi.Server.
type APIServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}
