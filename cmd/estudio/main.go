package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"estudio/internal/backend"
	"estudio/internal/cache"
	"estudio/internal/cli"
	"estudio/internal/config"
	"estudio/internal/core"
	apphttp "estudio/internal/http"
	applog "estudio/internal/log"
	"estudio/internal/metrics"
	"estudio/internal/ports"
	"estudio/internal/services"
	"estudio/internal/worker"
)

func main() {
	cfg, logger, err := cli.Bootstrap(applog.ComponentApp)
	if err != nil {
		cli.Fatal(nil, "Startup failed", err)
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		stop()
		cli.Fatal(logger, "Server error", err)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	m := metrics.New()

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

	summaries := cache.NewLRUCache[core.Summary](cfg.SummaryCacheSize, cfg.SummaryCacheTTL)
	caches := cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger)
	caches.Register(summaries)
	caches.StartCleanup(time.Minute)
	defer caches.Stop()

	// Without a broker the audit worker runs inline, after each commit.
	var publisher ports.EventPublisher
	if res.AMQP != nil {
		publisher = res.AMQP
		logger.Info("Publishing ledger events to AMQP", "exchange", cfg.AMQPExchange)
	} else {
		publisher = worker.InlinePublisher{Worker: worker.NewAuditWorker(res.Store, res.Store, res.Exporter, m, logger)}
		logger.Info("Handling ledger events in process")
	}

	ledgers := services.NewLedgerService(res.Store, res.Store,
		services.WithPublisher(publisher),
		services.WithSummaryCache(summaries),
		services.WithMetrics(m),
		services.WithLogger(logger))
	clients := services.NewClientService(res.Store, res.Store, ledgers, logger)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Ledgers:            ledgers,
		Clients:            clients,
		Store:              res.Store,
		Metrics:            m,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting estudio server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			applog.FieldOperation, applog.OpStartup)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on :%s: %w", cfg.Port, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server", applog.FieldOperation, applog.OpShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}
