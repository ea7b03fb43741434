// Command ledger-worker consumes ledger events from AMQP, appends them to the
// audit trail and exports recorded payments to Google Sheets.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"estudio/internal/backend"
	"estudio/internal/cli"
	"estudio/internal/config"
	applog "estudio/internal/log"
	"estudio/internal/metrics"
	"estudio/internal/worker"
)

func main() {
	cfg, logger, err := cli.Bootstrap(applog.ComponentWorker)
	if err != nil {
		cli.Fatal(nil, "Startup failed", err)
	}
	if cfg.EventsInProcess() {
		cli.Fatal(logger, "ledger-worker needs a broker", errors.New("AMQP_URL is not set"))
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		stop()
		cli.Fatal(logger, "Worker error", err)
	}
	logger.Info("ledger-worker stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bc)
	if err != nil {
		return fmt.Errorf("create backend: %w", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err.Error())
		}
	}()
	if res.AMQP == nil {
		return errors.New("AMQP broker unreachable")
	}
	if res.Exporter == nil {
		logger.Info("Google Sheets export disabled")
	}

	m := metrics.New()
	w := worker.NewAuditWorker(res.Store, res.Store, res.Exporter, m, logger)

	// Liveness and metrics for the orchestrator.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", m.Handler())
	ops := &http.Server{Addr: ":" + cfg.Port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx, res.AMQP)
	})
	g.Go(func() error {
		if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops listener: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down worker", applog.FieldOperation, applog.OpShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return ops.Shutdown(shutdownCtx)
	})

	logger.Info("ledger-worker started",
		"queue", cfg.AMQPQueue,
		"port", cfg.Port,
		applog.FieldOperation, applog.OpStartup)
	return g.Wait()
}
