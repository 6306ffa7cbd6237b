// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

package token

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ExpiredTokenDeleter removes denylist rows whose tokens have expired.
type ExpiredTokenDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Pruner periodically deletes expired rows from the revoked-token
// denylist. The verifier rejects expired tokens before consulting the
// denylist, so pruning bounds table growth without affecting revocation
// checks.
type Pruner struct {
	repo     ExpiredTokenDeleter
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPruner creates a pruner. A nil logger falls back to slog.Default.
func NewPruner(repo ExpiredTokenDeleter, interval time.Duration, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{repo: repo, interval: interval, logger: logger}
}

// RunOnce executes a single prune cycle.
func (p *Pruner) RunOnce(ctx context.Context) error {
	deleted, err := p.repo.DeleteExpired(ctx)
	if err != nil {
		return err
	}
	if deleted > 0 {
		p.logger.Info("pruned expired revoked tokens", "count", deleted)
	}
	return nil
}

// Start begins periodic pruning. The first cycle runs immediately.
func (p *Pruner) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.run(ctx)
}

// Stop stops the pruner and waits for the current cycle to finish.
func (p *Pruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pruner) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if err := p.RunOnce(ctx); err != nil {
		p.logger.Error("prune cycle failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				p.logger.Error("prune cycle failed", "error", err)
			}
		}
	}
}
