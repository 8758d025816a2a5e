// Package daemon wires the store, the clipboard poller, the retention loop,
// and the IPC server into one process.
package daemon

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/its-jojoo/otterclipd/internal/adapter/clipboard"
	"github.com/its-jojoo/otterclipd/internal/adapter/ipc"
	"github.com/its-jojoo/otterclipd/internal/adapter/storage"
	"github.com/its-jojoo/otterclipd/internal/adapter/storage/memory"
	"github.com/its-jojoo/otterclipd/internal/adapter/storage/sqlite"
	"github.com/its-jojoo/otterclipd/internal/config"
	"github.com/its-jojoo/otterclipd/internal/logging"
	"github.com/its-jojoo/otterclipd/internal/usecase/capture"
	"github.com/its-jojoo/otterclipd/internal/usecase/retention"
)

// Clipboard is the system clipboard as the daemon uses it.
type Clipboard interface {
	clipboard.Reader
	clipboard.Writer
	clipboard.Checker
}

type Options struct {
	// Ephemeral keeps history in memory only.
	Ephemeral bool

	// Clipboard overrides backend detection.
	Clipboard Clipboard
}

type Daemon struct {
	cfg       *config.Manager
	store     storage.Store
	live      *capture.LiveOptions
	poller    *capture.Poller
	retention *retention.Service
	server    *ipc.Server
}

// New opens the store and builds every component from the loaded
// configuration. A store that cannot be opened is fatal.
func New(ctx context.Context, cfg *config.Manager, opts Options) (*Daemon, error) {
	log := logging.FromContext(ctx)
	c := cfg.Get()

	store, err := openStore(ctx, c, opts.Ephemeral)
	if err != nil {
		return nil, err
	}

	clip := opts.Clipboard
	if clip == nil {
		tool, err := clipboard.Detect(c.Daemon.Clipboard)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		log.Info().Str("backend", tool.Name).Msg("clipboard backend selected")
		clip = tool
	}

	d := &Daemon{
		cfg:   cfg,
		store: store,
		live:  capture.NewLiveOptions(captureOptions(ctx, c)),
	}
	d.poller = capture.New(store, clip, clip, d.live.Load)
	d.retention = retention.New(store, d.retentionPolicy)

	d.server = ipc.NewServer(c.Daemon.Socket)
	handlers := &ipc.Handlers{
		Store:     store,
		Writer:    clip,
		Settings:  d.settings,
		Retention: d.retentionStatus,
	}
	handlers.Register(d.server)

	cfg.OnChange(func(next config.Config) {
		d.live.Store(captureOptions(ctx, next))
	})
	return d, nil
}

func openStore(ctx context.Context, c config.Config, ephemeral bool) (storage.Store, error) {
	if ephemeral {
		logging.FromContext(ctx).Warn().Msg("ephemeral mode: history is kept in memory only")
		return memory.New(), nil
	}
	st, err := sqlite.Open(ctx, c.Daemon.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return st, nil
}

// captureOptions converts the behavior section. An ignore pattern that no
// longer compiles disables the privacy filter rather than the poller.
func captureOptions(ctx context.Context, c config.Config) capture.Options {
	pf, err := c.Behavior.PrivacyFilter()
	if err != nil {
		logging.FromContext(ctx).Error().Err(err).Msg("invalid ignore patterns, privacy filter disabled")
		pf = nil
	}
	return capture.Options{
		Interval:      c.Behavior.PollInterval(),
		CaptureImages: c.Behavior.CaptureImages,
		ImageMIMEs:    c.Behavior.ImageMIMEs,
		MaxBytes:      c.Behavior.MaxItemBytes,
		Privacy:       pf,
	}
}

func (d *Daemon) retentionPolicy() retention.Policy {
	r := d.cfg.Get().Retention
	return retention.Policy{
		MaxAge:         r.MaxAge(),
		ProtectStarred: r.ProtectStarred,
		Interval:       r.Interval(),
	}
}

func (d *Daemon) retentionStatus() ipc.RetentionStatus {
	last := d.retention.Last()
	st := ipc.RetentionStatus{
		LastDeleted:  last.Deleted,
		TotalDeleted: d.retention.Total(),
	}
	if !last.At.IsZero() {
		at := last.At
		st.LastRun = &at
	}
	if last.Err != nil {
		st.LastError = last.Err.Error()
	}
	return st
}

func (d *Daemon) settings() ipc.Settings {
	c := d.cfg.Get()
	return ipc.Settings{UI: c.UI, Grid: c.Grid, Behavior: c.Behavior}
}

// Store exposes the open store.
func (d *Daemon) Store() storage.Store { return d.store }

// Server exposes the IPC server, mainly for its Ready channel.
func (d *Daemon) Server() *ipc.Server { return d.server }

// Run serves until ctx is cancelled or the IPC server fails, then closes
// the store. Poller and retention failures never stop the daemon.
func (d *Daemon) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)

	if err := d.cfg.Watch(logging.WithComponent(ctx, "config")); err != nil {
		log.Warn().Err(err).Msg("config watch unavailable, live reload disabled")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return d.poller.Run(logging.WithComponent(gctx, "capture"))
	})
	g.Go(func() error {
		return d.retention.Run(logging.WithComponent(gctx, "retention"))
	})
	g.Go(func() error {
		if err := d.server.Serve(logging.WithComponent(gctx, "ipc")); err != nil {
			return fmt.Errorf("ipc server: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if cerr := d.store.Close(); cerr != nil {
		log.Warn().Err(cerr).Msg("failed to close store")
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info().Int("retention_deleted", d.retention.Total()).Msg("daemon stopped")
	return err
}
