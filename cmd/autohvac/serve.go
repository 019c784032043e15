package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/adixon02/AutoHVAC-sub002/api"
	"github.com/adixon02/AutoHVAC-sub002/pipeline"
	"github.com/adixon02/AutoHVAC-sub002/shield"
)

// version is set at link time with -ldflags "-X main.version=...".
var version = "dev"

var serveNoWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API, with an in-process worker by default",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, logger, true)
		if err != nil {
			return err
		}
		defer a.Close()

		drain := &shield.Drain{}
		srv := api.New(api.Config{
			Service:        a.service,
			Queue:          a.queue,
			Metrics:        a.metrics,
			DB:             a.db,
			WorkerName:     cfg.Worker.Name,
			UploadDir:      cfg.Server.UploadDir,
			MaxUploadBytes: cfg.MaxUploadBytes(),
			RatePerSec:     cfg.Server.RatePerSec,
			RateBurst:      cfg.Server.RateBurst,
			Drain:          drain,
			Logger:         logger,
		})
		srv.Limiter().StartSweeper(ctx.Done(), time.Minute)

		// Jobs in flight finish on workCtx after the signal; the queue's
		// visibility timeout redelivers anything cut off harder than that.
		workCtx, stopWork := context.WithCancel(context.WithoutCancel(ctx))
		defer stopWork()
		var wg sync.WaitGroup
		if !serveNoWorker {
			w := a.newWorker()
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.Run(stopOnDrain(ctx, workCtx, cfg.Pipeline.JobTimeout))
			}()
		}
		go a.cleanupEvents(ctx)

		httpSrv := &http.Server{
			Addr:              cfg.Server.Listen,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
		}
		errCh := make(chan error, 1)
		go func() {
			logger.Info("autohvac: listening", "addr", cfg.Server.Listen, "worker", !serveNoWorker, "ai", a.pipeline.AIConfigured())
			errCh <- httpSrv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("autohvac: serve: %w", err)
			}
		case <-ctx.Done():
		}

		logger.Info("autohvac: draining")
		drain.Start()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("autohvac: http shutdown", "error", err)
		}
		wg.Wait()
		logger.Info("autohvac: stopped")
		return nil
	},
}

// stopOnDrain returns a context that ends grace after parent does, or when
// base ends. It lets the worker finish claimed jobs on shutdown.
func stopOnDrain(parent, base context.Context, grace time.Duration) context.Context {
	ctx, cancel := context.WithCancel(base)
	go func() {
		defer cancel()
		select {
		case <-ctx.Done():
			return
		case <-parent.Done():
		}
		t := time.NewTimer(grace)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}()
	return ctx
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume the job queue without serving HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, logger, true)
		if err != nil {
			return err
		}
		defer a.Close()

		go a.cleanupEvents(ctx)
		logger.Info("autohvac: worker started", "name", cfg.Worker.Name, "concurrency", cfg.Worker.Concurrency)
		a.newWorker().Run(ctx)
		logger.Info("autohvac: worker stopped")
		return nil
	},
}

var mcpNoWorker bool

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the job tools over MCP on stdio",
	Long: `mcp exposes submit_blueprint_job, job_status, job_result, cancel_job and
climate_lookup to an MCP client over stdin/stdout. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, logger, true)
		if err != nil {
			return err
		}
		defer a.Close()

		// The session ends on a signal or when the client closes stdin.
		ctx, stop := context.WithCancel(ctx)
		defer stop()
		var wg sync.WaitGroup
		if !mcpNoWorker {
			w := a.newWorker()
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.Run(ctx)
			}()
		}

		srv := mcp.NewServer(&mcp.Implementation{Name: "autohvac", Version: version}, nil)
		pipeline.RegisterMCPTools(srv, a.service, logger)
		err = srv.Run(ctx, &mcp.StdioTransport{})
		interrupted := ctx.Err() != nil
		stop()
		wg.Wait()
		if err != nil && !interrupted {
			return fmt.Errorf("autohvac: mcp: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoWorker, "no-worker", false, "serve the API only; run workers separately")
	mcpCmd.Flags().BoolVar(&mcpNoWorker, "no-worker", false, "queue jobs only; run workers separately")
	rootCmd.AddCommand(serveCmd, workerCmd, mcpCmd)
}
