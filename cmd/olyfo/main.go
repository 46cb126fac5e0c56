package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/amqp"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/cache"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/cli"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/config"
	apphttp "github.com/ahproster-ops/olyfo-funding-portal/internal/http"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/log"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/services"
)

func main() {
	cfg, logger := cli.Bootstrap((*config.Config).Validate)
	ctx := context.Background()

	be := cli.OpenBackend(ctx, logger, cfg)
	defer func() {
		if err := be.Close(); err != nil {
			logger.Error("Backend close error", log.FieldError, err)
		}
	}()

	// Activity events are optional; without a broker nothing is published.
	var publisher amqp.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.WithComponent(log.ComponentAMQP).Slog())
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		publisher = client
		logger.Info("AMQP publisher ready", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	caches := cache.NewManager(logger.Slog())
	sessions, releaseSessions := cli.OpenSessions(ctx, logger, cfg, be.Backend, caches)
	defer releaseSessions()
	sessions.OnChange(services.NewSessionActivity(publisher, logger))
	caches.StartCleanup(10 * time.Minute)

	records := services.NewRecordService(be.Backend, publisher, cfg.BackendTimeout, logger)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:         ":" + cfg.Port,
		Records:      records,
		Sessions:     sessions,
		Logger:       logger,
		CookieSecure: cfg.CookieSecure,
	})

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		caches.Stop()
	})

	logger.Info("Starting olyfo server", "port", cfg.Port, log.FieldBackend, cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-shutdownCtx.Done()
	<-done
	logger.Info("Server stopped gracefully")
}
