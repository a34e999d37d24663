package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Credit    TransactionType = "CREDIT"
	Debit     TransactionType = "DEBIT"
	SetWallet TransactionType = "SET_WALLET"
)

type (
	TransactionType string

	// User is a chat participant with a running wallet balance.
	// Wallet is authoritative: it equals the signed sum of the user's
	// transactions since the most recent set-wallet operation.
	User struct {
		ID     int64
		Name   string
		Wallet Money
	}

	// Category is created lazily on first debit and never deleted.
	// Name is always stored normalized (lowercase, trimmed).
	Category struct {
		ID   int64
		Name string
	}

	// Transaction is one ledger entry. Type doubles as the variant tag:
	// CategoryID and CategoryName are meaningful only when Type is Debit.
	Transaction struct {
		ID           int64
		UserID       int64
		Type         TransactionType
		Amount       Money
		CategoryID   int64
		CategoryName string
		Date         time.Time
	}

	// CategorySpend is a per-category debit aggregate.
	CategorySpend struct {
		CategoryID   int64
		CategoryName string
		Total        Money
		Count        int64
	}
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrEmptyCategory       = errors.New("empty category")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNothingToUndo       = errors.New("no transaction to undo")
	ErrSetNotUndoable      = errors.New("set-wallet transactions cannot be undone")
	ErrUserNotFound        = errors.New("user not found")
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case Credit, Debit, SetWallet:
		return true
	}
	return false
}

// HasCategory reports whether the transaction carries a category reference.
func (t Transaction) HasCategory() bool {
	return t.Type == Debit && t.CategoryID != 0
}

// Signed returns the transaction's effect on the wallet: positive for
// credits, negative for debits. SET_WALLET rows carry an absolute amount
// and contribute nothing to a signed sum.
func (t Transaction) Signed() Money {
	switch t.Type {
	case Credit:
		return t.Amount
	case Debit:
		return Money{Paise: -t.Amount.Paise}
	}
	return Money{}
}

// NormalizeCategory canonicalizes a category name for lookup and storage.
func NormalizeCategory(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateCategory checks a raw category name supplied with a debit.
func ValidateCategory(name string) error {
	if NormalizeCategory(name) == "" {
		return ErrEmptyCategory
	}
	return nil
}
