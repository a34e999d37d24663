// Package query serves read-only historical views of the ledger. It always
// queries the store directly, never the entry cache: history and aggregates
// must reflect every committed transaction.
package query

import (
	"context"
	"fmt"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/log"
)

// DefaultHistoryLimit caps how many rows a history query returns.
const DefaultHistoryLimit = 50

// Store is the read-only slice of the balance store the engine needs.
type Store interface {
	ListTransactionsSince(ctx context.Context, userID int64, since time.Time, limit int) ([]core.Transaction, error)
	GroupDebitsByCategory(ctx context.Context, userID int64, since time.Time) ([]core.CategorySpend, error)
}

// Engine answers history and breakdown queries.
type Engine struct {
	store  Store
	limit  int
	now    func() time.Time
	logger *log.Logger
}

// HistoryResult is a window of transactions, newest first, with the net
// movement over the window (credits minus debits).
type HistoryResult struct {
	PeriodDays   int
	Transactions []core.Transaction
	Net          core.Money
}

// BreakdownResult groups the window's debits by category, largest spend
// first.
type BreakdownResult struct {
	PeriodDays int
	Rows       []core.CategorySpend
	TotalSpent core.Money
	TotalCount int64
}

func NewEngine(store Store, limit int, logger *log.Logger) *Engine {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Engine{
		store:  store,
		limit:  limit,
		now:    time.Now,
		logger: logger.WithComponent(log.ComponentQuery),
	}
}

// WithClock overrides the engine's clock. Tests use this to pin "now" so
// window boundaries and the 1m period are deterministic.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// PeriodDays maps a period token to a day count: 1d, 1w, 1m (days in the
// current calendar month), 1y. Unrecognized tokens fall back to a year.
func PeriodDays(token string, now time.Time) int {
	switch token {
	case "1d":
		return 1
	case "1w":
		return 7
	case "1m":
		// Days in the current calendar month: day zero of next month.
		return time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location()).Day()
	case "1y", "1yr":
		return 365
	default:
		return 365
	}
}

// History returns the user's transactions within the period window.
func (e *Engine) History(ctx context.Context, userID int64, periodToken string) (*HistoryResult, error) {
	now := e.now()
	days := PeriodDays(periodToken, now)
	since := now.AddDate(0, 0, -days)

	txns, err := e.store.ListTransactionsSince(ctx, userID, since, e.limit)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	var net core.Money
	for _, t := range txns {
		net = net.Add(t.Signed())
	}

	e.logger.DebugContext(ctx, "History query served",
		log.FieldOperation, log.OpHistory, log.FieldUserID, userID,
		log.FieldPeriodDays, days, "rows", len(txns))

	return &HistoryResult{
		PeriodDays:   days,
		Transactions: txns,
		Net:          net,
	}, nil
}

// CategoryBreakdown returns per-category debit totals within the window.
// Categories with no debits in the window are omitted.
func (e *Engine) CategoryBreakdown(ctx context.Context, userID int64, periodToken string) (*BreakdownResult, error) {
	now := e.now()
	days := PeriodDays(periodToken, now)
	since := now.AddDate(0, 0, -days)

	rows, err := e.store.GroupDebitsByCategory(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("category breakdown: %w", err)
	}

	result := &BreakdownResult{PeriodDays: days, Rows: rows}
	for _, r := range rows {
		result.TotalSpent = result.TotalSpent.Add(r.Total)
		result.TotalCount += r.Count
	}

	e.logger.DebugContext(ctx, "Breakdown query served",
		log.FieldOperation, log.OpBreakdown, log.FieldUserID, userID,
		log.FieldPeriodDays, days, "rows", len(rows))

	return result, nil
}
