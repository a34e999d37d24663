// Package ledger applies balance mutations against the store with
// transactional atomicity, keeping the entry cache write-through coherent.
//
// The cache is consulted only to skip lookups (is this user known, does
// this category exist). It never feeds a balance decision: affordability
// is checked by the store inside the same atomic unit as the decrement,
// and cached balances are refreshed only from committed store results.
package ledger

import (
	"context"
	"fmt"

	"kharcha/internal/cache"
	"kharcha/internal/core"
	"kharcha/internal/log"
)

// Engine exposes the mutating ledger operations to the command router.
type Engine struct {
	store  Store
	cache  *cache.EntryCache
	events EventPublisher // nil disables event publishing
	logger *log.Logger
}

// Result carries the outcome of a successful mutation.
type Result struct {
	User        *core.User
	Transaction *core.Transaction // nil for EnsureUser and SetBalance
}

func NewEngine(store Store, entries *cache.EntryCache, events EventPublisher, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Engine{
		store:  store,
		cache:  entries,
		events: events,
		logger: logger.WithComponent(log.ComponentLedger),
	}
}

// EnsureUser makes sure the user exists in store and cache, creating the
// row with a zero balance on first contact. It is a best-effort presence
// check: store failures are logged and swallowed so they never block the
// command that triggered it.
func (e *Engine) EnsureUser(ctx context.Context, id int64, name string) {
	if _, ok := e.cache.GetUser(id); ok {
		return
	}

	user, err := e.store.FindUser(ctx, id)
	if err != nil {
		e.logger.ErrorContext(ctx, "Ensure user: store lookup failed",
			log.FieldOperation, log.OpEnsureUser, log.FieldUserID, id, log.FieldError, err)
		return
	}
	if user == nil {
		user, err = e.store.CreateUser(ctx, id, name, core.Money{})
		if err != nil {
			e.logger.ErrorContext(ctx, "Ensure user: create failed",
				log.FieldOperation, log.OpEnsureUser, log.FieldUserID, id, log.FieldError, err)
			return
		}
	}

	e.cache.SetUser(*user)
}

// Credit atomically increments the balance and appends a CREDIT row. The
// cache is refreshed only after the store confirms the commit.
func (e *Engine) Credit(ctx context.Context, id int64, amount core.Money) (*Result, error) {
	if err := amount.Validate(); err != nil {
		return nil, err
	}

	user, txn, err := e.store.Credit(ctx, id, amount)
	if err != nil {
		return nil, fmt.Errorf("credit: %w", err)
	}

	e.cache.UpdateUser(*user)
	e.publishRecorded(ctx, *txn, user.Wallet)
	return &Result{User: user, Transaction: txn}, nil
}

// Debit resolves the category (cache first, store fallback, lazy create)
// and then atomically checks affordability, decrements the balance and
// appends a DEBIT row. On failure nothing is persisted and nothing is
// cached.
func (e *Engine) Debit(ctx context.Context, id int64, amount core.Money, categoryName string) (*Result, error) {
	if err := amount.Validate(); err != nil {
		return nil, err
	}
	if err := core.ValidateCategory(categoryName); err != nil {
		return nil, err
	}

	category, err := e.resolveCategory(ctx, categoryName)
	if err != nil {
		return nil, fmt.Errorf("debit: %w", err)
	}

	user, txn, err := e.store.Debit(ctx, id, amount, category.ID)
	if err != nil {
		return nil, fmt.Errorf("debit: %w", err)
	}
	txn.CategoryName = category.Name

	e.cache.UpdateUser(*user)
	e.publishRecorded(ctx, *txn, user.Wallet)
	return &Result{User: user, Transaction: txn}, nil
}

// SetBalance overwrites the wallet with an absolute amount. No transaction
// row is appended, so the signed-sum invariant restarts from this point.
func (e *Engine) SetBalance(ctx context.Context, id int64, amount core.Money) (*Result, error) {
	if err := amount.Validate(); err != nil {
		return nil, err
	}

	user, err := e.store.SetBalance(ctx, id, amount)
	if err != nil {
		return nil, fmt.Errorf("set balance: %w", err)
	}

	e.cache.UpdateUser(*user)
	return &Result{User: user}, nil
}

// Undo reverses the user's most recent transaction: the row is deleted and
// the balance effect inverted in one atomic unit. Set-wallet operations
// are not reversible.
func (e *Engine) Undo(ctx context.Context, id int64) (*Result, error) {
	latest, err := e.store.FindLatestTransaction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("undo: %w", err)
	}
	if latest == nil {
		return nil, core.ErrNothingToUndo
	}
	if latest.Type == core.SetWallet {
		return nil, core.ErrSetNotUndoable
	}

	user, err := e.store.RevertTransaction(ctx, latest)
	if err != nil {
		return nil, fmt.Errorf("undo: %w", err)
	}

	e.cache.UpdateUser(*user)
	e.publishReverted(ctx, *latest, user.Wallet)
	return &Result{User: user, Transaction: latest}, nil
}

// resolveCategory returns the category for a raw name, creating it on
// first use. Newly fetched or created rows are written back into the
// cache; a racing create elsewhere is resolved by the store's unique
// constraint, not by cache locking.
func (e *Engine) resolveCategory(ctx context.Context, name string) (*core.Category, error) {
	if cached, ok := e.cache.GetCategory(name); ok {
		return &cached, nil
	}

	category, err := e.store.FindCategory(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resolve category: %w", err)
	}
	if category == nil {
		category, err = e.store.CreateCategory(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("resolve category: %w", err)
		}
	}

	e.cache.SetCategory(*category)
	return category, nil
}

func (e *Engine) publishRecorded(ctx context.Context, txn core.Transaction, balance core.Money) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishTransactionRecorded(ctx, txn, balance); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish transaction event",
			log.FieldOperation, log.OpPublish, log.FieldTxnID, txn.ID, log.FieldError, err)
	}
}

func (e *Engine) publishReverted(ctx context.Context, txn core.Transaction, balance core.Money) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishTransactionReverted(ctx, txn, balance); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish revert event",
			log.FieldOperation, log.OpPublish, log.FieldTxnID, txn.ID, log.FieldError, err)
	}
}
