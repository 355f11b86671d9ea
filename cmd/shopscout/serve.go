package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/basket/shopscout/internal/gateway"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the search web page and JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default bind_addr from config)")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, addr string) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.BindAddr = addr
	}

	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	if missing := cfg.MissingSecrets(); len(missing) > 0 {
		logger.Warn("searches will fail until these are set", "missing", missing)
	}

	srv := gateway.New(gateway.Config{
		Searcher:        a.bridge,
		MissingSecrets:  cfg.MissingSecrets,
		RateLimit:       cfg.RateLimit,
		CORS:            cfg.CORS,
		MaxRequestBytes: cfg.MaxRequestBytes,
		Metrics:         a.metrics,
		Tracer:          a.otel.Tracer,
		Logger:          logger,
	})

	ln, err := net.Listen("tcp", cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.BindAddr, err)
	}
	// No write timeout: a search can take minutes while the agent scrapes.
	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	srv.StartEviction(gctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", ln.Addr().String())
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
