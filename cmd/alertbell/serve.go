package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/alertbell/internal/alert"
	"github.com/gyaneshwarpardhi/alertbell/internal/api"
	"github.com/gyaneshwarpardhi/alertbell/internal/config"
	"github.com/gyaneshwarpardhi/alertbell/internal/dropdown"
	"github.com/gyaneshwarpardhi/alertbell/internal/engine"
	"github.com/gyaneshwarpardhi/alertbell/internal/sse"
	"github.com/gyaneshwarpardhi/alertbell/internal/store"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr, clientID string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the alert daemon and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, addr, clientID)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides server.addr)")
	cmd.Flags().StringVar(&clientID, "client-id", "", "push channel client id (overrides source.client_id)")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, addr, clientID string) error {
	loader, cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	log := opts.newLogger(cfg.Log)
	if addr == "" {
		addr = cfg.Server.Addr
	}
	if clientID == "" {
		clientID = cfg.Source.ClientID
	}
	if clientID == "" {
		clientID = "alertbell-" + uuid.NewString()
	}

	// ── Store ───────────────────────────────────────────────────────────────
	backend, err := openBackend(cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	st := store.New(ctx, backend, store.Options{
		Key:         cfg.Store.Key,
		Categorizer: alert.NewCategorizer(cfg.CategoryAliases()),
		Logger:      log,
	})
	defer st.Close()
	log.Info("store ready", "driver", cfg.Store.Driver, "alerts", len(st.Snapshot()))

	// ── Engine ──────────────────────────────────────────────────────────────
	engCtx, engCancel := context.WithCancel(context.Background())
	defer engCancel()
	eng := engine.New(engCtx, st, cfg.Engine, log)

	// ── Dropdown ────────────────────────────────────────────────────────────
	dd := dropdown.New(dropdown.Options{
		OpenDelay:     time.Duration(cfg.Dropdown.OpenDelayMs) * time.Millisecond,
		CloseDuration: time.Duration(cfg.Dropdown.CloseMs) * time.Millisecond,
	})
	defer dd.Stop()

	// ── Push channel ────────────────────────────────────────────────────────
	var sourceConnected func() bool
	sourceDone := make(chan struct{})
	if cfg.Source.URL != "" {
		sup := sse.NewSupervisor(sse.Options{URL: cfg.Source.URL, Logger: log}, clientID, eng.Handle, reconnectBackoff(cfg.Source.Reconnect))
		sourceConnected = sup.Connected
		go func() {
			defer close(sourceDone)
			if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("push channel stopped", "err", err)
			}
		}()
		log.Info("push channel subscribed", "url", cfg.Source.URL, "client_id", clientID)
	} else {
		close(sourceDone)
		log.Warn("source.url not set; only HTTP ingest is available")
	}

	// ── Hot reload ──────────────────────────────────────────────────────────
	if loader != nil {
		rl := newReloader(log, opts, cfg, st, dd)
		loader.OnChange(rl.apply)
		stopWatch, err := loader.Watch()
		if err != nil {
			log.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
		} else {
			defer stopWatch()
		}
	}

	// ── HTTP server ─────────────────────────────────────────────────────────
	handler := api.New(api.Deps{
		Store:           st,
		Engine:          eng,
		Dropdown:        dd,
		SourceConnected: sourceConnected,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		Logger:          log,
	})
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// ── Graceful shutdown ───────────────────────────────────────────────────
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			handler.Close()
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info("shutting down")

	handler.Close()
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	<-sourceDone
	eng.Shutdown()
	log.Info("goodbye")
	return nil
}

func reconnectBackoff(c config.ReconnectConf) sse.Backoff {
	return sse.Backoff{
		Initial:    time.Duration(c.InitialMs) * time.Millisecond,
		Max:        time.Duration(c.MaxMs) * time.Millisecond,
		Multiplier: c.Multiplier,
		Jitter:     c.Jitter,
	}
}

// reloader pushes the hot-reloadable parts of each new config into the
// running components. Source and store settings are fixed at startup, so a
// change to them is reported until the file matches the running values again.
type reloader struct {
	log  *slog.Logger
	opts *rootOptions
	st   *store.Store
	dd   *dropdown.Controller

	mu      sync.Mutex
	running *config.Config // settings the process was started with
	last    *config.Config // last config applied
}

func newReloader(log *slog.Logger, opts *rootOptions, startup *config.Config, st *store.Store, dd *dropdown.Controller) *reloader {
	return &reloader{log: log, opts: opts, st: st, dd: dd, running: startup, last: startup}
}

func (r *reloader) apply(next *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.opts.applyOverrides(next)
	r.opts.setLevel(next.Log.Level)
	r.st.SetCategorizer(alert.NewCategorizer(next.CategoryAliases()))
	r.dd.SetTimings(
		time.Duration(next.Dropdown.OpenDelayMs)*time.Millisecond,
		time.Duration(next.Dropdown.CloseMs)*time.Millisecond,
	)

	switch {
	case next.Source != r.running.Source || next.Store != r.running.Store:
		r.log.Warn("source or store settings differ from the running ones; restart to apply")
	case next.Source != r.last.Source || next.Store != r.last.Store:
		r.log.Info("source and store settings match the running ones again")
	}
	r.last = next
	r.log.Info("config hot-reloaded", "aliases", len(next.CategoryAliases()), "log_level", next.Log.Level)
}
