package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"kharcha/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the durable balance store. Every balance-affecting
// operation runs as one immediate transaction covering the balance
// read/check, the balance write and the transaction row, so concurrent
// commands on the same user serialize at the store boundary.
type SQLiteRepository struct {
	db *sql.DB
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// _txlock=immediate makes writer transactions take the write lock up
	// front instead of failing on upgrade under concurrency.
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// FindUser returns the user row, or nil when the user does not exist.
func (r *SQLiteRepository) FindUser(ctx context.Context, id int64) (*core.User, error) {
	u, err := scanUser(r.db, ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

// CreateUser inserts a user with upsert semantics: if the row already
// exists it is left untouched and the existing row is returned.
func (r *SQLiteRepository) CreateUser(ctx context.Context, id int64, name string, wallet core.Money) (*core.User, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, wallet_paise) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		id, name, wallet.Paise)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	u, err := scanUser(r.db, ctx, id)
	if err != nil {
		return nil, fmt.Errorf("create user: read back: %w", err)
	}

	slog.InfoContext(ctx, "User ensured in store", "user_id", id, "balance_paise", u.Wallet.Paise)
	return u, nil
}

// SetBalance overwrites the wallet with an absolute amount. No transaction
// row is appended: the signed-sum invariant holds forward from here.
func (r *SQLiteRepository) SetBalance(ctx context.Context, id int64, amount core.Money) (*core.User, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET wallet_paise = ? WHERE id = ?`, amount.Paise, id)
	if err != nil {
		return nil, fmt.Errorf("set balance: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, core.ErrUserNotFound
	}

	u, err := scanUser(r.db, ctx, id)
	if err != nil {
		return nil, fmt.Errorf("set balance: read back: %w", err)
	}
	return u, nil
}

// Credit atomically increments the wallet and appends a CREDIT row.
func (r *SQLiteRepository) Credit(ctx context.Context, id int64, amount core.Money) (*core.User, *core.Transaction, error) {
	var (
		user *core.User
		txn  *core.Transaction
	)
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET wallet_paise = wallet_paise + ? WHERE id = ?`, amount.Paise, id)
		if err != nil {
			return fmt.Errorf("increment wallet: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return core.ErrUserNotFound
		}

		txn, err = insertTransaction(tx, ctx, id, core.Credit, amount, 0)
		if err != nil {
			return err
		}

		user, err = scanUser(tx, ctx, id)
		if err != nil {
			return fmt.Errorf("read user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	slog.InfoContext(ctx, "Credit committed",
		"user_id", id, "txn_id", txn.ID, "amount_paise", amount.Paise, "balance_paise", user.Wallet.Paise)
	return user, txn, nil
}

// Debit atomically checks affordability, decrements the wallet and appends
// a DEBIT row referencing the category. The balance check reads the store
// inside the same transaction as the decrement, so a concurrent credit or
// debit cannot race past it.
func (r *SQLiteRepository) Debit(ctx context.Context, id int64, amount core.Money, categoryID int64) (*core.User, *core.Transaction, error) {
	var (
		user *core.User
		txn  *core.Transaction
	)
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var balance int64
		err := tx.QueryRowContext(ctx,
			`SELECT wallet_paise FROM users WHERE id = ?`, id).Scan(&balance)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("read balance: %w", err)
		}
		if balance < amount.Paise {
			return core.ErrInsufficientBalance
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET wallet_paise = wallet_paise - ? WHERE id = ?`, amount.Paise, id); err != nil {
			return fmt.Errorf("decrement wallet: %w", err)
		}

		txn, err = insertTransaction(tx, ctx, id, core.Debit, amount, categoryID)
		if err != nil {
			return err
		}

		user, err = scanUser(tx, ctx, id)
		if err != nil {
			return fmt.Errorf("read user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	slog.InfoContext(ctx, "Debit committed",
		"user_id", id, "txn_id", txn.ID, "amount_paise", amount.Paise,
		"category_id", categoryID, "balance_paise", user.Wallet.Paise)
	return user, txn, nil
}

// FindCategory looks up a category by normalized name, or nil on miss.
func (r *SQLiteRepository) FindCategory(ctx context.Context, name string) (*core.Category, error) {
	var c core.Category
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM categories WHERE name = ?`,
		core.NormalizeCategory(name)).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find category: %w", err)
	}
	return &c, nil
}

// CreateCategory inserts the normalized name, relying on the unique
// constraint to resolve concurrent first-uses of the same name: whoever
// loses the insert race reads the winner's row back.
func (r *SQLiteRepository) CreateCategory(ctx context.Context, name string) (*core.Category, error) {
	normalized := core.NormalizeCategory(name)
	if normalized == "" {
		return nil, core.ErrEmptyCategory
	}

	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, normalized); err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}

	var c core.Category
	if err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM categories WHERE name = ?`, normalized).Scan(&c.ID, &c.Name); err != nil {
		return nil, fmt.Errorf("create category: read back: %w", err)
	}
	return &c, nil
}

// FindLatestTransaction returns the user's most recent transaction by date,
// ties broken by insertion order, or nil when the user has no history.
func (r *SQLiteRepository) FindLatestTransaction(ctx context.Context, userID int64) (*core.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx,
		`SELECT t.id, t.user_id, t.type, t.amount_paise, COALESCE(t.category_id, 0), COALESCE(c.name, ''), t.date
		 FROM transactions t
		 LEFT JOIN categories c ON c.id = t.category_id
		 WHERE t.user_id = ?
		 ORDER BY t.date DESC, t.id DESC
		 LIMIT 1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find latest transaction: %w", err)
	}
	return t, nil
}

// RevertTransaction atomically deletes the given transaction row and
// applies the inverse balance delta: a credit is subtracted back out, a
// debit is added back. Callers must reject SET_WALLET rows beforehand.
func (r *SQLiteRepository) RevertTransaction(ctx context.Context, txn *core.Transaction) (*core.User, error) {
	var user *core.User
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, txn.ID)
		if err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return core.ErrNothingToUndo
		}

		delta := -txn.Signed().Paise
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET wallet_paise = wallet_paise + ? WHERE id = ?`, delta, txn.UserID); err != nil {
			return fmt.Errorf("revert wallet: %w", err)
		}

		user, err = scanUser(tx, ctx, txn.UserID)
		if err != nil {
			return fmt.Errorf("read user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Transaction reverted",
		"user_id", txn.UserID, "txn_id", txn.ID, "txn_type", string(txn.Type),
		"balance_paise", user.Wallet.Paise)
	return user, nil
}

// ListTransactionsSince returns the user's transactions with date >= since,
// newest first, capped at limit. The since bound is normalized to UTC:
// dates are stored as UTC text and the driver compares them as text, so a
// bound carrying a local offset would shift the window by that offset.
func (r *SQLiteRepository) ListTransactionsSince(ctx context.Context, userID int64, since time.Time, limit int) ([]core.Transaction, error) {
	since = since.UTC()
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.user_id, t.type, t.amount_paise, COALESCE(t.category_id, 0), COALESCE(c.name, ''), t.date
		 FROM transactions t
		 LEFT JOIN categories c ON c.id = t.category_id
		 WHERE t.user_id = ? AND t.date >= ?
		 ORDER BY t.date DESC, t.id DESC
		 LIMIT ?`, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txns, nil
}

// GroupDebitsByCategory sums the user's DEBIT rows since the given time per
// category, largest spend first. Categories with no matching rows are
// naturally absent from the result. The since bound is normalized to UTC
// like in ListTransactionsSince.
func (r *SQLiteRepository) GroupDebitsByCategory(ctx context.Context, userID int64, since time.Time) ([]core.CategorySpend, error) {
	since = since.UTC()
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.category_id, c.name, SUM(t.amount_paise), COUNT(t.id)
		 FROM transactions t
		 JOIN categories c ON c.id = t.category_id
		 WHERE t.user_id = ? AND t.type = 'DEBIT' AND t.date >= ?
		 GROUP BY t.category_id, c.name
		 ORDER BY SUM(t.amount_paise) DESC`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("group debits by category: %w", err)
	}
	defer rows.Close()

	var spends []core.CategorySpend
	for rows.Next() {
		var s core.CategorySpend
		if err := rows.Scan(&s.CategoryID, &s.CategoryName, &s.Total.Paise, &s.Count); err != nil {
			return nil, fmt.Errorf("scan category spend: %w", err)
		}
		spends = append(spends, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("group debits by category: %w", err)
	}
	return spends, nil
}

// withTx runs fn in a transaction, rolling back on any error.
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func insertTransaction(tx dbtx, ctx context.Context, userID int64, typ core.TransactionType, amount core.Money, categoryID int64) (*core.Transaction, error) {
	txn := &core.Transaction{
		UserID: userID,
		Type:   typ,
		Amount: amount,
		Date:   time.Now().UTC(),
	}
	var category any
	if categoryID != 0 {
		category = categoryID
		txn.CategoryID = categoryID
	}

	err := tx.QueryRowContext(ctx,
		`INSERT INTO transactions (user_id, type, amount_paise, category_id, date)
		 VALUES (?, ?, ?, ?, ?) RETURNING id`,
		userID, string(typ), amount.Paise, category, txn.Date).Scan(&txn.ID)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	return txn, nil
}

func scanUser(q dbtx, ctx context.Context, id int64) (*core.User, error) {
	var u core.User
	err := q.QueryRowContext(ctx,
		`SELECT id, name, wallet_paise FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Wallet.Paise)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*core.Transaction, error) {
	var (
		t   core.Transaction
		typ string
	)
	if err := row.Scan(&t.ID, &t.UserID, &typ, &t.Amount.Paise, &t.CategoryID, &t.CategoryName, &t.Date); err != nil {
		return nil, err
	}
	t.Type = core.TransactionType(typ)
	return &t, nil
}
