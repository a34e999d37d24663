package ledger

import (
	"context"

	"kharcha/internal/core"
)

// Store is the narrow contract the engine needs from the balance store.
// Implementations must make every balance-affecting call a single atomic
// unit: the balance read/check, the balance write and the transaction row
// commit or fail together, with no partial state visible to concurrent
// readers. storage.SQLiteRepository is the production implementation.
type Store interface {
	FindUser(ctx context.Context, id int64) (*core.User, error)
	CreateUser(ctx context.Context, id int64, name string, wallet core.Money) (*core.User, error)
	SetBalance(ctx context.Context, id int64, amount core.Money) (*core.User, error)
	Credit(ctx context.Context, id int64, amount core.Money) (*core.User, *core.Transaction, error)
	Debit(ctx context.Context, id int64, amount core.Money, categoryID int64) (*core.User, *core.Transaction, error)
	FindCategory(ctx context.Context, name string) (*core.Category, error)
	CreateCategory(ctx context.Context, name string) (*core.Category, error)
	FindLatestTransaction(ctx context.Context, userID int64) (*core.Transaction, error)
	RevertTransaction(ctx context.Context, txn *core.Transaction) (*core.User, error)
}

// EventPublisher receives best-effort notifications after confirmed
// commits. Publishing failures never fail the originating command.
type EventPublisher interface {
	PublishTransactionRecorded(ctx context.Context, txn core.Transaction, balance core.Money) error
	PublishTransactionReverted(ctx context.Context, txn core.Transaction, balance core.Money) error
}
