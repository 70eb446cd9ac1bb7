package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/alertbell/internal/config"
	"github.com/gyaneshwarpardhi/alertbell/internal/store"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	cfgPath  string
	logLevel string
	output   string

	stdout io.Writer
	stderr io.Writer
	level  slog.LevelVar
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{stdout: os.Stdout, stderr: os.Stderr}

	cmd := &cobra.Command{
		Use:   "alertbell",
		Short: "Real-time alert notification daemon",
		Long: `alertbell subscribes to a server-sent alert stream, categorizes and
de-duplicates incoming alerts, keeps their read state durable and serves
filtered views, unread counts and dropdown state over HTTP.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.stdout = cmd.OutOrStdout()
			opts.stderr = cmd.ErrOrStderr()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.cfgPath, "config", "configs/alertbell.yaml", "path to YAML config (empty for built-in defaults)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "output format: table, json, yaml")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newAlertsCmd(opts))
	cmd.AddCommand(newVersionCmd(opts))
	return cmd
}

func newVersionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(opts.stdout, "alertbell", version)
			return err
		},
	}
}

// loadConfig reads and validates the config file, or returns defaults when
// no path is given.
func (o *rootOptions) loadConfig() (*config.Loader, *config.Config, error) {
	if o.cfgPath == "" {
		cfg := config.Default()
		o.applyOverrides(cfg)
		return nil, cfg, nil
	}
	loader, err := config.NewLoader(o.cfgPath)
	if err != nil {
		return nil, nil, err
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}
	o.applyOverrides(cfg)
	return loader, cfg, nil
}

func (o *rootOptions) applyOverrides(cfg *config.Config) {
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
}

// newLogger builds the process logger from the log section and installs it
// as the slog default. The level can later be changed with setLevel.
func (o *rootOptions) newLogger(conf config.LogConf) *slog.Logger {
	o.setLevel(conf.Level)
	hopts := &slog.HandlerOptions{Level: &o.level}

	var h slog.Handler
	if conf.Format == "json" {
		h = slog.NewJSONHandler(o.stderr, hopts)
	} else {
		h = slog.NewTextHandler(o.stderr, hopts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

func (o *rootOptions) setLevel(name string) {
	switch strings.ToLower(name) {
	case "debug":
		o.level.Set(slog.LevelDebug)
	case "warn":
		o.level.Set(slog.LevelWarn)
	case "error":
		o.level.Set(slog.LevelError)
	default:
		o.level.Set(slog.LevelInfo)
	}
}

// openBackend opens the durable backend selected by conf.
func openBackend(conf config.StoreConf) (store.Backend, error) {
	switch conf.Driver {
	case "sqlite":
		b, err := store.NewSQLiteBackend(conf.Path)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "file":
		b, err := store.NewFileBackend(conf.Path)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "memory":
		return store.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", conf.Driver)
	}
}
