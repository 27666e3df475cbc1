// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store manages the PostgreSQL connection pool and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions control how Connect waits for the database.
type ConnectOptions struct {
	// Attempts is the total number of ping attempts. Values below 1 mean 1.
	Attempts uint64
	// Backoff is the base delay between attempts, doubled each time.
	Backoff time.Duration
	// Timeout bounds each ping.
	Timeout time.Duration
}

// DefaultConnectOptions retries for roughly thirty seconds.
var DefaultConnectOptions = ConnectOptions{
	Attempts: 6,
	Backoff:  500 * time.Millisecond,
	Timeout:  5 * time.Second,
}

// Connect opens a pgx pool for dsn and waits until the database answers a ping.
func Connect(ctx context.Context, dsn string, opts ConnectOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database url").Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultConnectOptions.Backoff
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultConnectOptions.Timeout
	}

	attempt := 0
	backoff := retry.WithMaxRetries(opts.Attempts-1, retry.NewExponential(opts.Backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
		if pingErr := pool.Ping(pingCtx); pingErr != nil {
			slog.WarnContext(ctx, "database not ready", "attempt", attempt, "error", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return pool, nil
}
