// Package worker consumes the transaction event stream and writes the
// audit trail. The trail is structured log output: every recorded or
// reverted transaction becomes one audit line with the full event payload.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"kharcha/internal/amqp"
	"kharcha/internal/log"
)

// Consumer is the slice of the AMQP client the worker needs.
type Consumer interface {
	ConsumeTransactionEvents(ctx context.Context, handler func(*amqp.TransactionEventMessage) error) error
}

// AuditWorker turns transaction events into audit log entries.
type AuditWorker struct {
	consumer Consumer
	logger   *log.Logger

	processed atomic.Int64
	skipped   atomic.Int64
}

func NewAuditWorker(consumer Consumer, logger *log.Logger) *AuditWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &AuditWorker{
		consumer: consumer,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// Run consumes events until ctx is cancelled or the consumer fails.
func (w *AuditWorker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "audit worker started", log.FieldOperation, log.OpStartup)
	if err := w.consumer.ConsumeTransactionEvents(ctx, func(msg *amqp.TransactionEventMessage) error {
		return w.HandleEvent(ctx, msg)
	}); err != nil {
		return fmt.Errorf("consume transaction events: %w", err)
	}
	return nil
}

// HandleEvent writes one audit entry. Events with an unknown type are
// logged and acked rather than requeued: requeueing a malformed event
// would loop forever.
func (w *AuditWorker) HandleEvent(ctx context.Context, msg *amqp.TransactionEventMessage) error {
	switch msg.Event {
	case amqp.EventTransactionRecorded, amqp.EventTransactionReverted:
	default:
		w.skipped.Add(1)
		w.logger.WarnContext(ctx, "skipping unknown event type",
			"event", msg.Event,
			log.FieldTxnID, msg.TxnID,
		)
		return nil
	}

	w.processed.Add(1)
	w.logger.InfoContext(ctx, "audit",
		"event", msg.Event,
		log.FieldTxnID, msg.TxnID,
		log.FieldUserID, msg.UserID,
		"type", msg.Type,
		log.FieldAmountPaise, msg.AmountPaise,
		log.FieldCategory, msg.Category,
		log.FieldBalance, msg.BalancePaise,
		"txn_date", msg.Date,
		"published_at", msg.Timestamp,
	)
	return nil
}

// Stats reports how many events this worker has processed and skipped.
func (w *AuditWorker) Stats() (processed, skipped int64) {
	return w.processed.Load(), w.skipped.Load()
}
