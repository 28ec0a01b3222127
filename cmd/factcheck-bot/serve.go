package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/txn2/factcheck-bot/internal/server"
	"github.com/txn2/factcheck-bot/pkg/platform"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, cmd)
		},
	}
}

// serve runs until ctx ends, then stops accepting requests, drains webhook
// events and closes the stores within server.shutdown_timeout.
func (a *app) serve(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	logger := platform.NewLogger(cfg.Logging, cmd.ErrOrStderr())
	p, err := platform.New(platform.WithConfig(cfg), platform.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("creating platform: %w", err)
	}
	if err := p.Start(ctx); err != nil {
		_ = p.Close()
		return fmt.Errorf("starting platform: %w", err)
	}

	srv := server.New(p)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "address", srv.Addr, "version", server.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()

		p.Health().SetDraining()
		httpErr := srv.Shutdown(sctx)
		if httpErr != nil {
			httpErr = fmt.Errorf("shutting down http: %w", httpErr)
		}
		return errors.Join(httpErr, p.Stop(sctx))
	})

	return g.Wait()
}
