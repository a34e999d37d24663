package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"kharcha/internal/amqp"
	"kharcha/internal/cli"
	"kharcha/internal/log"
	"kharcha/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("starting kharcha-worker", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the audit worker")
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	auditWorker := worker.NewAuditWorker(client, logger)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return auditWorker.Run(ctx)
	})

	err = g.Wait()
	processed, skipped := auditWorker.Stats()
	logger.Info("audit worker stopped",
		log.FieldOperation, log.OpShutdown,
		"processed", processed,
		"skipped", skipped,
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
}
