package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ahproster-ops/olyfo-funding-portal/internal/amqp"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/cache"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/cli"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/config"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/log"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/sheets"
	"github.com/ahproster-ops/olyfo-funding-portal/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap((*config.Config).ValidateWorker)
	logger.Info("Starting olyfo-worker")

	sheetsClient, err := sheets.NewClient(context.Background(), cfg.GoogleSpreadsheetID, sheets.Credentials{
		JSON: cfg.GoogleServiceAccountJSON,
		File: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.WithComponent(log.ComponentAMQP).Slog())
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	w := worker.NewActivityWorker(sheets.NewMirror(sheetsClient), logger)
	caches := cache.NewManager(logger.Slog())
	caches.Register(w.Seen())

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.Consume(gctx, w.HandleEvent)
	})
	g.Go(func() error {
		return w.ReportStats(gctx, 5*time.Minute)
	})
	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := caches.Sweep(); n > 0 {
					logger.Debug("Swept redelivery cache", log.FieldCount, n)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	<-done
	logger.Info("Worker stopped gracefully")
}
