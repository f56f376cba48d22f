package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"chaintetris/internal/chain"
	"chaintetris/internal/config"
	"chaintetris/internal/game"
	"chaintetris/internal/handlers"
	"chaintetris/internal/logging"
	"chaintetris/internal/metrics"
	"chaintetris/internal/platform/ratelimiter"
)

//go:embed static/*
var embeddedStatic embed.FS

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:          "web",
		Short:        "Serve the on-chain Tetris client over HTTP",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("TETRIS_CONFIG"), "YAML config file")
	return cmd
}

func run(ctx context.Context, configPath string) error {
	_ = mime.AddExtensionType(".js", "application/javascript")
	_ = mime.AddExtensionType(".css", "text/css")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		return err
	}

	m := metrics.New()
	client, err := chain.Dial(ctx, cfg.ChainConfig(), logger, m)
	if err != nil {
		return err
	}
	defer client.Close()
	logger.Info("connected",
		"rpc_url", cfg.Chain.RPCURL,
		"chain_id", client.ChainID().String(),
		"contract", client.Address().Hex(),
		"account", client.Account().Hex(),
		"can_sign", client.CanSign(),
	)

	store := game.NewStore(ctx, client, cfg.GameOptions(), logger, m)
	defer store.Close()

	events := make(chan chain.Event, 128)
	go watchEvents(ctx, client, store, events, time.Second, logger)
	go store.Run(ctx, events)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(handlers.Viewer)

	staticFS, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		return err
	}
	r.Mount("/static", http.StripPrefix("/static", http.FileServer(http.FS(staticFS))))
	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if _, err := client.BlockNumber(ctx); err != nil {
			http.Error(w, "rpc unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	limiter := ratelimiter.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute)
	handlers.NewHomeHandler(store, client.ChainID().String(), logger).RegisterRoutes(r)
	handlers.NewRoomHandler(store, limiter, m, cfg.BaseURL, logger).RegisterRoutes(r)

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Streams and mined transactions outlive any fixed write deadline.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", "http://localhost"+cfg.Listen)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	store.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type eventSource interface {
	Watch(ctx context.Context, sink chan<- chain.Event) error
}

type resyncer interface {
	ResyncAll()
}

const maxWatchBackoff = 30 * time.Second

// watchEvents keeps the contract event stream open, resyncing every room after a reconnect.
func watchEvents(ctx context.Context, src eventSource, rooms resyncer, events chan<- chain.Event, backoff time.Duration, logger *slog.Logger) {
	for {
		err := src.Watch(ctx, events)
		if ctx.Err() != nil {
			return
		}
		logger.Warn("event stream ended, reconnecting", "err", err, "in", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < maxWatchBackoff {
			backoff = min(backoff*2, maxWatchBackoff)
		}
		rooms.ResyncAll()
	}
}
