// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// DefaultSweepInterval is how often a Sweeper runs when no interval is given.
const DefaultSweepInterval = 10 * time.Minute

// Sweep kinds reported to MetricsRecorder.RecordSwept.
const (
	SweptRevocations   = "revocations"
	SweptRefreshTokens = "refresh_tokens"
)

// SweepResult counts the entries removed by one sweep.
type SweepResult struct {
	Revocations   int64
	RefreshTokens int64
}

// Sweeper periodically removes expired revocation entries and refresh tokens.
type Sweeper struct {
	refresh  RefreshTokenStore
	revoked  RevokedAccessTokenStore
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
	metrics  MetricsRecorder
}

// SweeperOption configures a Sweeper during construction.
type SweeperOption func(*Sweeper)

// WithSweepInterval sets the interval between sweeps.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSweepClock overrides the time source.
func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSweepLogger sets the logger.
func WithSweepLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSweepMetrics sets the metrics recorder.
func WithSweepMetrics(m MetricsRecorder) SweeperOption {
	return func(s *Sweeper) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewSweeper creates a Sweeper over the given stores.
func NewSweeper(refresh RefreshTokenStore, revoked RevokedAccessTokenStore, opts ...SweeperOption) (*Sweeper, error) {
	if refresh == nil {
		return nil, oops.Code("ACCOUNT_SWEEPER_INVALID").Errorf("refresh token store is required")
	}
	if revoked == nil {
		return nil, oops.Code("ACCOUNT_SWEEPER_INVALID").Errorf("revoked access token store is required")
	}
	s := &Sweeper{
		refresh:  refresh,
		revoked:  revoked,
		interval: DefaultSweepInterval,
		now:      time.Now,
		logger:   slog.Default(),
		metrics:  nopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SweepOnce purges expired entries from both stores. A failure in one store
// does not prevent the other from being swept.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := s.now()

	revocations, revErr := s.revoked.PurgeExpired(ctx, now)
	if revErr != nil {
		revErr = oops.Code("ACCOUNT_SWEEP_FAILED").With("kind", SweptRevocations).Wrap(revErr)
	} else {
		result.Revocations = revocations
		s.metrics.RecordSwept(SweptRevocations, revocations)
	}

	tokens, tokErr := s.refresh.DeleteExpired(ctx, now)
	if tokErr != nil {
		tokErr = oops.Code("ACCOUNT_SWEEP_FAILED").With("kind", SweptRefreshTokens).Wrap(tokErr)
	} else {
		result.RefreshTokens = tokens
		s.metrics.RecordSwept(SweptRefreshTokens, tokens)
	}

	return result, errors.Join(revErr, tokErr)
}

// Run sweeps immediately and then every interval until ctx is cancelled.
// Sweep failures are logged; Run only returns when ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "sweeper started", "interval", s.interval.String())
	for {
		result, err := s.SweepOnce(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "sweep failed", "error", err)
		} else if result.Revocations > 0 || result.RefreshTokens > 0 {
			s.logger.InfoContext(ctx, "sweep completed",
				"revocations", result.Revocations,
				"refresh_tokens", result.RefreshTokens)
		}

		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}
