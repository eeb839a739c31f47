// Command orchestrad runs the orchestration engine as a long-lived process:
// it loads workflow definitions, drains the task queue with a pool of
// workers and serves the engine as a JSON API over HTTP.
//
// Configuration comes from ORCHESTRA_* environment variables, optionally
// seeded from a .env file in the working directory.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/petrijr/orchestra/internal/config"
	"github.com/petrijr/orchestra/internal/engine"
	"github.com/petrijr/orchestra/internal/workflow"
	"github.com/petrijr/orchestra/pkg/api"
	"github.com/petrijr/orchestra/pkg/worker"
)

func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, ".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run wires config, logger, store, engine, workers and the HTTP server, and
// blocks until ctx is cancelled.
func run(ctx context.Context, outW io.Writer, envFiles ...string) error {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log.Level, cfg.Log.Format, outW)
	slog.SetDefault(logger)

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("Session store ready.", "backend", cfg.Store.Backend)

	actions := newSystemActions(logger)
	metrics := &api.BasicMetrics{}
	obs := api.NewCompositeObserver(api.NewLoggingObserver(logger), metrics)

	eng := engine.NewEngine(engine.Config{
		Store:                    store,
		Dispatcher:               actions,
		Observer:                 obs,
		Parallelism:              cfg.Parallelism,
		AllowUnknownDependencies: cfg.LenientTasks,
	})

	if err := loadWorkflows(ctx, eng, cfg.WorkflowDir, logger); err != nil {
		return err
	}

	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()
	var wg sync.WaitGroup
	for i := range cfg.Worker.Concurrency {
		w := worker.NewWithConfig(eng.Tasks(), actions, worker.Config{
			MaxAttempts:  cfg.Worker.MaxAttempts,
			Backoff:      cfg.Worker.Backoff,
			PollInterval: cfg.Worker.PollInterval,
			Observer:     obs,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(workerCtx); err != nil {
				logger.Error("Task worker stopped.", "worker", i, "error", err)
			}
		}()
	}
	logger.Info("Task workers started.", "count", cfg.Worker.Concurrency)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: newServer(eng, metrics, logger).routes(),
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting.", "address", cfg.HTTPAddr)
		// ListenAndServe returns ErrServerClosed on graceful shutdown.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown requested.")
	case err := <-serveErr:
		if err != nil {
			logger.Error("HTTP server failed.", "error", err)
		}
	}

	// Flag the engine first so /health reports shutting_down while draining.
	eng.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed.", "error", err)
	}

	cancelWorkers()
	wg.Wait()
	logger.Info("Stopped.")
	return nil
}

func loadWorkflows(ctx context.Context, eng api.Engine, dir string, logger *slog.Logger) error {
	if dir == "" {
		return nil
	}
	wfs, err := workflow.LoadWorkflowDir(dir)
	if err != nil {
		return err
	}
	for _, wf := range wfs {
		if err := eng.RegisterWorkflow(ctx, wf); err != nil {
			return fmt.Errorf("register workflow %q: %w", wf.Name, err)
		}
		logger.Debug("Workflow registered.", "workflow", wf.Name, "steps", len(wf.Steps))
	}
	logger.Info("Workflows loaded.", "dir", dir, "count", len(wfs))
	return nil
}
