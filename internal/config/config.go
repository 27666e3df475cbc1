// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads accounts service configuration from a YAML file,
// command-line flags and the environment.
package config

import (
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/accounts/internal/account"
	"github.com/holomush/accounts/internal/logging"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Environment variables consulted when the corresponding key is empty.
const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvSigningKey  = "ACCOUNTS_SIGNING_KEY"
)

// Config is the complete service configuration.
type Config struct {
	Log           LogConfig           `koanf:"log" json:"log,omitempty"`
	Storage       StorageConfig       `koanf:"storage" json:"storage,omitempty"`
	Database      DatabaseConfig      `koanf:"database" json:"database,omitempty"`
	Redis         RedisConfig         `koanf:"redis" json:"redis,omitempty"`
	Kafka         KafkaConfig         `koanf:"kafka" json:"kafka,omitempty"`
	Tokens        TokensConfig        `koanf:"tokens" json:"tokens,omitempty"`
	Accounts      AccountsConfig      `koanf:"accounts" json:"accounts,omitempty"`
	Observability ObservabilityConfig `koanf:"observability" json:"observability,omitempty"`
	Sweep         SweepConfig         `koanf:"sweep" json:"sweep,omitempty"`
}

// LogConfig selects log output.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// StorageConfig selects the store implementation.
type StorageConfig struct {
	Driver string `koanf:"driver" json:"driver,omitempty" jsonschema:"enum=postgres,enum=memory"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL             string        `koanf:"url" json:"url,omitempty"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout" json:"connect_timeout,omitempty"`
	ConnectAttempts int           `koanf:"connect_attempts" json:"connect_attempts,omitempty" jsonschema:"minimum=1"`
	AutoMigrate     bool          `koanf:"auto_migrate" json:"auto_migrate,omitempty"`
}

// RedisConfig configures the optional redis revocation store.
type RedisConfig struct {
	Addr     string `koanf:"addr" json:"addr,omitempty"`
	Password string `koanf:"password" json:"password,omitempty"`
	DB       int    `koanf:"db" json:"db,omitempty" jsonschema:"minimum=0"`
}

// KafkaConfig configures the optional lifecycle event publisher.
type KafkaConfig struct {
	Brokers []string `koanf:"brokers" json:"brokers,omitempty"`
	Topic   string   `koanf:"topic" json:"topic,omitempty"`
}

// TokensConfig configures access and refresh token issuance.
type TokensConfig struct {
	Issuer     string        `koanf:"issuer" json:"issuer,omitempty"`
	SigningKey string        `koanf:"signing_key" json:"signing_key,omitempty"`
	AccessTTL  time.Duration `koanf:"access_ttl" json:"access_ttl,omitempty"`
	RefreshTTL time.Duration `koanf:"refresh_ttl" json:"refresh_ttl,omitempty"`
}

// AccountsConfig tunes lifecycle behavior.
type AccountsConfig struct {
	ConcealUnknownUsers bool `koanf:"conceal_unknown_users" json:"conceal_unknown_users,omitempty"`
}

// ObservabilityConfig configures the metrics and health endpoint.
type ObservabilityConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty"`
}

// SweepConfig configures the expired-record sweeper.
type SweepConfig struct {
	Interval time.Duration `koanf:"interval" json:"interval,omitempty"`
}

// Default returns the configuration used when no file or flag overrides a key.
func Default() Config {
	return Config{
		Log:     LogConfig{Format: "json", Level: "info"},
		Storage: StorageConfig{Driver: DriverPostgres},
		Database: DatabaseConfig{
			ConnectTimeout:  5 * time.Second,
			ConnectAttempts: 6,
		},
		Kafka: KafkaConfig{Topic: "account_events"},
		Tokens: TokensConfig{
			Issuer:     "holomush-accounts",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: account.DefaultRefreshTokenTTL,
		},
		Accounts:      AccountsConfig{ConcealUnknownUsers: true},
		Observability: ObservabilityConfig{Addr: "127.0.0.1:9100"},
		Sweep:         SweepConfig{Interval: account.DefaultSweepInterval},
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"log-format":                     "log.format",
	"log-level":                      "log.level",
	"storage-driver":                 "storage.driver",
	"database-url":                   "database.url",
	"database-connect-timeout":       "database.connect_timeout",
	"database-connect-attempts":      "database.connect_attempts",
	"database-auto-migrate":          "database.auto_migrate",
	"redis-addr":                     "redis.addr",
	"redis-db":                       "redis.db",
	"kafka-brokers":                  "kafka.brokers",
	"kafka-topic":                    "kafka.topic",
	"tokens-issuer":                  "tokens.issuer",
	"tokens-access-ttl":              "tokens.access_ttl",
	"tokens-refresh-ttl":             "tokens.refresh_ttl",
	"accounts-conceal-unknown-users": "accounts.conceal_unknown_users",
	"observability-addr":             "observability.addr",
	"sweep-interval":                 "sweep.interval",
}

// RegisterFlags adds a flag for each overridable key to fs. Flag defaults
// mirror Default. Secrets are deliberately absent and must come from the
// file or the environment.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "minimum log level (debug, info, warn, error)")
	fs.String("storage-driver", d.Storage.Driver, "store implementation (postgres or memory)")
	fs.String("database-url", d.Database.URL, "PostgreSQL connection URL (default: $DATABASE_URL)")
	fs.Duration("database-connect-timeout", d.Database.ConnectTimeout, "timeout for each connection attempt")
	fs.Int("database-connect-attempts", d.Database.ConnectAttempts, "connection attempts before giving up")
	fs.Bool("database-auto-migrate", d.Database.AutoMigrate, "apply pending migrations on startup")
	fs.String("redis-addr", d.Redis.Addr, "redis address for access token revocations (empty = use storage driver)")
	fs.Int("redis-db", d.Redis.DB, "redis database number")
	fs.StringSlice("kafka-brokers", d.Kafka.Brokers, "kafka brokers for lifecycle events (empty = disabled)")
	fs.String("kafka-topic", d.Kafka.Topic, "kafka topic for lifecycle events")
	fs.String("tokens-issuer", d.Tokens.Issuer, "access token issuer")
	fs.Duration("tokens-access-ttl", d.Tokens.AccessTTL, "access token lifetime")
	fs.Duration("tokens-refresh-ttl", d.Tokens.RefreshTTL, "refresh token lifetime")
	fs.Bool("accounts-conceal-unknown-users", d.Accounts.ConcealUnknownUsers, "report unknown usernames as invalid credentials on login")
	fs.String("observability-addr", d.Observability.Addr, "metrics/health HTTP address (empty = disabled)")
	fs.Duration("sweep-interval", d.Sweep.Interval, "interval between expired-record sweeps")
}

// LoadOptions control where Load reads from.
type LoadOptions struct {
	// File is an optional YAML config file. It is schema-validated first.
	File string
	// EnvFile is an optional dotenv file loaded into the process environment.
	EnvFile string
	// Flags carries overrides registered with RegisterFlags.
	Flags *pflag.FlagSet
}

// Load assembles a Config from defaults, the config file, changed flags and
// environment fallbacks. Callers validate the result with Validate or
// ValidateDatabase depending on what they need.
func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, oops.Code("CONFIG_ENV_FILE_FAILED").With("path", opts.EnvFile).Wrap(err)
		}
	}

	k := koanf.New(".")

	if opts.File != "" {
		if err := ValidateFile(opts.File); err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", opts.File).Wrap(err)
		}
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv(EnvDatabaseURL)
	}
	if cfg.Tokens.SigningKey == "" {
		cfg.Tokens.SigningKey = os.Getenv(EnvSigningKey)
	}

	return &cfg, nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
}

// ValidateDatabase checks only the keys needed to reach PostgreSQL.
func (c *Config) ValidateDatabase() error {
	if c.Database.URL == "" {
		return invalid("database.url", "database.url or %s is required", EnvDatabaseURL)
	}
	if c.Database.ConnectTimeout <= 0 {
		return invalid("database.connect_timeout", "database.connect_timeout must be positive")
	}
	if c.Database.ConnectAttempts < 1 {
		return invalid("database.connect_attempts", "database.connect_attempts must be at least 1")
	}
	return nil
}

// Validate checks that the configuration is usable for serving.
func (c *Config) Validate() error {
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "log.level %q is not a level", c.Log.Level)
	}
	if !slices.Contains([]string{DriverPostgres, DriverMemory}, c.Storage.Driver) {
		return invalid("storage.driver", "storage.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, c.Storage.Driver)
	}
	if c.Storage.Driver == DriverPostgres && c.Database.URL == "" {
		return invalid("database.url", "database.url or %s is required for the postgres driver", EnvDatabaseURL)
	}
	if c.Database.ConnectTimeout <= 0 {
		return invalid("database.connect_timeout", "database.connect_timeout must be positive")
	}
	if c.Database.ConnectAttempts < 1 {
		return invalid("database.connect_attempts", "database.connect_attempts must be at least 1")
	}
	if c.Redis.DB < 0 {
		return invalid("redis.db", "redis.db must not be negative")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return invalid("kafka.topic", "kafka.topic is required when brokers are set")
	}
	if c.Tokens.Issuer == "" {
		return invalid("tokens.issuer", "tokens.issuer is required")
	}
	if len(c.Tokens.SigningKey) < account.MinSigningKeyLength {
		return invalid("tokens.signing_key", "tokens.signing_key or %s must be at least %d bytes", EnvSigningKey, account.MinSigningKeyLength)
	}
	if c.Tokens.AccessTTL <= 0 {
		return invalid("tokens.access_ttl", "tokens.access_ttl must be positive")
	}
	if c.Tokens.RefreshTTL <= 0 {
		return invalid("tokens.refresh_ttl", "tokens.refresh_ttl must be positive")
	}
	if c.Sweep.Interval <= 0 {
		return invalid("sweep.interval", "sweep.interval must be positive")
	}
	return nil
}

// LogOptions converts the log section to logging options. Validate must
// have succeeded.
func (c *Config) LogOptions() logging.Options {
	level, _ := logging.ParseLevel(c.Log.Level)
	return logging.Options{Format: c.Log.Format, Level: level}
}
