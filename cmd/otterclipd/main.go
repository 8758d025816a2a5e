// Command otterclipd records clipboard history and serves it over a Unix
// socket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/its-jojoo/otterclipd/internal/config"
	"github.com/its-jojoo/otterclipd/internal/daemon"
	"github.com/its-jojoo/otterclipd/internal/logging"
)

var version = "dev"

type flags struct {
	config    string
	socket    string
	database  string
	logLevel  string
	logFormat string
	clipboard string
	ephemeral bool
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:           "otterclipd",
		Short:         "Clipboard history daemon",
		Long:          `otterclipd polls the clipboard, keeps a deduplicated history of text and images, prunes old entries, and answers otterclipctl over a Unix socket.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.config, "config", "", "config file (default $XDG_CONFIG_HOME/otterclip/config.toml)")
	cmd.Flags().StringVar(&f.socket, "socket", "", "socket path (overrides daemon.socket)")
	cmd.Flags().StringVar(&f.database, "db", "", "database file (overrides daemon.database)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "trace, debug, info, warn or error")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "", "console or json")
	cmd.Flags().StringVar(&f.clipboard, "clipboard", "", "clipboard backend: auto, wayland, x11 or darwin")
	cmd.Flags().BoolVar(&f.ephemeral, "ephemeral", false, "keep history in memory only")
	return cmd
}

func run(cmd *cobra.Command, f flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, err := config.NewManager(f.config)
	if err != nil {
		return err
	}
	overrides := map[string]string{
		config.KeyDaemonSocket:    f.socket,
		config.KeyDaemonDatabase:  f.database,
		config.KeyDaemonClipboard: f.clipboard,
		config.KeyLogLevel:        f.logLevel,
		config.KeyLogFormat:       f.logFormat,
	}
	for key, value := range overrides {
		if value != "" {
			mgr.Set(key, value)
		}
	}

	// Config errors are reported before the configured logger exists.
	ctx = logging.WithContext(ctx, logging.NewFromEnv())
	if err := mgr.Load(ctx); err != nil {
		return fmt.Errorf("loading %s: %w", mgr.Path(), err)
	}

	cfg := mgr.Get()
	logger := logging.NewFromConfigValues(cfg.Logging.Level, cfg.Logging.Format)
	ctx = logging.WithContext(ctx, logger)
	logger.Info().
		Str("version", cmd.Version).
		Str("config", mgr.Path()).
		Str("socket", cfg.Daemon.Socket).
		Bool("ephemeral", f.ephemeral).
		Msg("starting otterclipd")

	d, err := daemon.New(ctx, mgr, daemon.Options{Ephemeral: f.ephemeral})
	if err != nil {
		return err
	}
	return d.Run(ctx)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "otterclipd:", err)
		os.Exit(1)
	}
}
