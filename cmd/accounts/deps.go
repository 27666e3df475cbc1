// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/account"
	"github.com/holomush/accounts/internal/account/kafka"
	"github.com/holomush/accounts/internal/account/memstore"
	"github.com/holomush/accounts/internal/account/postgres"
	accountredis "github.com/holomush/accounts/internal/account/redis"
	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/observability"
	"github.com/holomush/accounts/internal/store"
)

// Stores bundles the three account stores and a release func.
type Stores struct {
	Users   account.UserStore
	Refresh account.RefreshTokenStore
	Revoked account.RevokedAccessTokenStore
	// Ping reports store reachability for readiness checks. May be nil.
	Ping  func(ctx context.Context) error
	Close func() error
}

// Publisher is an account.EventPublisher that holds resources.
type Publisher interface {
	account.EventPublisher
	Close() error
}

// ObservabilityServer is the subset of observability.Server used by serve.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// Migrator is the subset of store.Migrator used by the migrate command.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (store.MigrationStatus, error)
	Close() error
}

// Deps contains injectable dependencies for the CLI commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// StoresFactory opens the stores selected by cfg.
	// Default: openStores with Clock
	StoresFactory func(ctx context.Context, cfg *config.Config) (*Stores, error)

	// PublisherFactory creates the lifecycle event publisher.
	// Default: kafka.NewPublisher
	PublisherFactory func(brokers []string, topic string) (Publisher, error)

	// MigratorFactory creates a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// Clock returns the current time.
	// Default: time.Now
	Clock func() time.Time
}

func (d *Deps) setDefaults() {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.StoresFactory == nil {
		clock := d.Clock
		d.StoresFactory = func(ctx context.Context, cfg *config.Config) (*Stores, error) {
			return openStores(ctx, cfg, clock)
		}
	}
	if d.PublisherFactory == nil {
		d.PublisherFactory = func(brokers []string, topic string) (Publisher, error) {
			p, err := kafka.NewPublisher(brokers, topic)
			if err != nil {
				return nil, err //nolint:wrapcheck // publisher errors carry their own codes
			}
			return p, nil
		}
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(databaseURL string) (Migrator, error) {
			m, err := store.NewMigrator(databaseURL)
			if err != nil {
				return nil, err //nolint:wrapcheck // store errors carry their own codes
			}
			return m, nil
		}
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
}

// openStores connects the stores for cfg.Storage.Driver. When redis.addr is
// set, access token revocations live in redis instead. now drives expiry in
// the memory stores.
func openStores(ctx context.Context, cfg *config.Config, now func() time.Time) (*Stores, error) {
	var (
		stores  *Stores
		closers []func() error
	)

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		stores = &Stores{
			Users:   memstore.NewUserStore(),
			Refresh: memstore.NewRefreshTokenStore(),
			Revoked: memstore.NewRevokedAccessTokenStore(now),
		}
	case config.DriverPostgres:
		pool, err := store.Connect(ctx, cfg.Database.URL, store.ConnectOptions{
			Attempts: uint64(cfg.Database.ConnectAttempts), //nolint:gosec // validated positive
			Backoff:  store.DefaultConnectOptions.Backoff,
			Timeout:  cfg.Database.ConnectTimeout,
		})
		if err != nil {
			return nil, err //nolint:wrapcheck // store errors carry their own codes
		}
		closers = append(closers, func() error { pool.Close(); return nil })
		stores = &Stores{
			Users:   postgres.NewUserStore(pool),
			Refresh: postgres.NewRefreshTokenStore(pool),
			Revoked: postgres.NewRevokedAccessTokenStore(pool),
			Ping:    pingPool(pool),
		}
	default:
		return nil, oops.Code("CONFIG_INVALID").With("key", "storage.driver").Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			_ = closeAll(closers)
			return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.Redis.Addr).Wrap(err)
		}
		closers = append(closers, client.Close)
		stores.Revoked = accountredis.NewRevokedAccessTokenStore(client)
	}

	stores.Close = func() error { return closeAll(closers) }
	return stores, nil
}

func pingPool(pool *pgxpool.Pool) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return pool.Ping(ctx) //nolint:wrapcheck // readiness only checks for nil
	}
}

func closeAll(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// runtime is a fully wired account service.
type runtime struct {
	service   *account.Service
	tokens    *account.JWTIssuer
	stores    *Stores
	publisher Publisher
}

// buildRuntime wires stores, token issuer, publisher and service from cfg.
// metrics may be nil.
func buildRuntime(ctx context.Context, cfg *config.Config, deps *Deps, logger *slog.Logger, metrics account.MetricsRecorder) (*runtime, error) {
	tokens, err := account.NewJWTIssuer(cfg.Tokens.Issuer, []byte(cfg.Tokens.SigningKey), cfg.Tokens.AccessTTL)
	if err != nil {
		return nil, err //nolint:wrapcheck // account errors carry their own codes
	}

	stores, err := deps.StoresFactory(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []account.ServiceOption{
		account.WithLogger(logger),
		account.WithClock(deps.Clock),
		account.WithRefreshTokenTTL(cfg.Tokens.RefreshTTL),
		account.WithConcealUnknownUsers(cfg.Accounts.ConcealUnknownUsers),
	}
	if metrics != nil {
		opts = append(opts, account.WithMetrics(metrics))
	}

	var publisher Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err = deps.PublisherFactory(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			_ = stores.Close()
			return nil, err
		}
		opts = append(opts, account.WithEventPublisher(publisher))
	}

	service, err := account.NewService(stores.Users, stores.Refresh, stores.Revoked, account.NewArgon2idHasher(), tokens, opts...)
	if err != nil {
		_ = stores.Close()
		if publisher != nil {
			_ = publisher.Close()
		}
		return nil, err //nolint:wrapcheck // account errors carry their own codes
	}

	return &runtime{service: service, tokens: tokens, stores: stores, publisher: publisher}, nil
}

// Close releases the publisher and stores.
func (r *runtime) Close() error {
	var errs []error
	if r.publisher != nil {
		if err := r.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.stores.Close != nil {
		if err := r.stores.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
