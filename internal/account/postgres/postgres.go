// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements the account stores on PostgreSQL using pgx.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
)

// Querier is the subset of *pgxpool.Pool used by the stores.
// pgxmock.PgxPoolIface satisfies it as well.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Default retry policy for transient failures.
const (
	DefaultMaxRetries  = 3
	DefaultBaseBackoff = 50 * time.Millisecond
)

type options struct {
	maxRetries  uint64
	baseBackoff time.Duration
}

// Option configures a store.
type Option func(*options)

// WithRetry sets how many times a statement is retried after a transient
// failure and the base of the exponential backoff between attempts.
// maxRetries of 0 disables retries.
func WithRetry(maxRetries uint64, baseBackoff time.Duration) Option {
	return func(o *options) {
		o.maxRetries = maxRetries
		if baseBackoff > 0 {
			o.baseBackoff = baseBackoff
		}
	}
}

func newOptions(opts []Option) options {
	o := options{maxRetries: DefaultMaxRetries, baseBackoff: DefaultBaseBackoff}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// do runs fn, retrying transient failures. Every statement the stores issue
// is idempotent, so retrying after an ambiguous failure is safe.
func (o options) do(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(o.maxRetries, retry.NewExponential(o.baseBackoff))
	//nolint:wrapcheck // callers wrap with operation context
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && isTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// isTransient reports whether err is a connection-level or serialization
// failure that may succeed on retry.
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code) ||
			pgErr.Code == pgerrcode.SerializationFailure ||
			pgErr.Code == pgerrcode.DeadlockDetected ||
			pgErr.Code == pgerrcode.CannotConnectNow
	}
	return pgconn.SafeToRetry(err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
