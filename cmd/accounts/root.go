// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/logging"
	"github.com/holomush/accounts/internal/xdg"
)

const serviceName = "holomush-accounts"

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the accounts CLI. A nil deps uses
// the production implementations.
func NewRootCmd(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = &Deps{}
	}
	deps.setDefaults()

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "HoloMUSH accounts - account lifecycle service",
		Long: `HoloMUSH accounts manages player accounts: registration, login and
logout with access and refresh tokens, and one-way withdrawal.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/holomush-accounts/config.yaml)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before reading configuration")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd(deps))
	cmd.AddCommand(NewMigrateCmd(deps))
	cmd.AddCommand(NewAccountCmd(deps))
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig reads configuration for cmd from the config file, env file and
// persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		path = xdg.DefaultConfigFile()
	}
	//nolint:wrapcheck // config errors carry their own codes
	return config.Load(config.LoadOptions{
		File:    path,
		EnvFile: envFile,
		Flags:   cmd.Flags(),
	})
}

// setupLogging installs the default logger for cfg and returns it.
func setupLogging(cfg *config.Config) *slog.Logger {
	return logging.SetDefault(serviceName, version, cfg.LogOptions())
}
