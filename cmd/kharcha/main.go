package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"kharcha/internal/amqp"
	"kharcha/internal/bot"
	"kharcha/internal/cache"
	"kharcha/internal/cli"
	"kharcha/internal/ledger"
	"kharcha/internal/log"
	"kharcha/internal/query"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(log.ComponentApp)
	logger.Info("starting kharcha bot", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	entries := cache.NewEntryCache(cache.EntryCacheConfig{
		UserTTL:          cfg.UserCacheTTL,
		UserCapacity:     cfg.UserCacheCapacity,
		CategoryTTL:      cfg.CategoryCacheTTL,
		CategoryCapacity: cfg.CategoryCacheCapacity,
	})
	manager := cache.NewManager()
	entries.Register(manager)
	manager.StartCleanup(cfg.CacheCleanupInterval)
	defer manager.Stop()

	// The event stream is optional: without an AMQP URL the ledger runs
	// local-only and skips publishing.
	var events ledger.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		events = client
		logger.Info("AMQP event stream enabled",
			log.FieldExchange, cfg.AMQPExchange,
			log.FieldQueue, cfg.AMQPQueue,
		)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	ledgerEngine := ledger.NewEngine(repo, entries, events, logger)
	queryEngine := query.NewEngine(repo, cfg.HistoryLimit, logger)
	router := bot.NewRouter(ledgerEngine, queryEngine, logger)

	b, err := bot.New(cfg.BotToken, cfg.UpdateTimeout, router, logger)
	if err != nil {
		logger.Error("failed to initialize bot", log.FieldError, err)
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.Run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("bot stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("bot stopped gracefully", log.FieldOperation, log.OpShutdown)
}
