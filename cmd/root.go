package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cwbudde/petstudy/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix prefixes environment overrides, e.g. PETSTUDY_DATA_DIR.
const envPrefix = "PETSTUDY"

var (
	cfgFile string
	logger  *slog.Logger

	// cfg merges flags, PETSTUDY_* environment variables and the config file
	cfg = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "petstudy",
	Short: "Paraboloid optimization studies",
	Long: `petstudy builds small problem graphs around the paraboloid
f(x,y) = (x-3)^2 + xy + (y+4)^2 - 3, drives them with single runs,
optimizers and parameter sweeps, and records every case.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}

		// Setup logger
		var level slog.Level
		switch cfg.GetString("log-level") {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		// Logs go to stderr so case output on stdout stays parseable.
		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stderr, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (YAML)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("data-dir", "./data", "Base directory for recorded runs")

	cfg.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	cfg.BindPFlag("data-dir", rootCmd.PersistentFlags().Lookup("data-dir"))

	cfg.SetEnvPrefix(envPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cfg.AutomaticEnv()
}

// initConfig reads the config file named by --config, if any.
func initConfig() error {
	if cfgFile == "" {
		return nil
	}
	cfg.SetConfigFile(cfgFile)
	if err := cfg.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", cfgFile, err)
	}
	slog.Debug("Loaded config", "path", cfg.ConfigFileUsed())
	return nil
}

// openStore opens the run store under the configured data directory.
func openStore() (*store.FSStore, error) {
	st, err := store.NewFSStore(cfg.GetString("data-dir"))
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return st, nil
}

// commandContext returns the command's context, or a background context
// when the command is invoked directly.
func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
