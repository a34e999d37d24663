package ledger

import (
	"context"
	"sync"
	"time"

	"kharcha/internal/core"
)

// memStore is an in-memory Store with the same atomicity guarantees the
// SQLite repository provides: each mutating call holds the store lock for
// its whole read-check-write unit.
type memStore struct {
	mu         sync.Mutex
	users      map[int64]*core.User
	categories map[string]*core.Category
	txns       []core.Transaction
	nextTxnID  int64
	nextCatID  int64

	findUserCalls     int
	findCategoryCalls int
	failWith          error // when set, every call fails with this error
}

func newMemStore() *memStore {
	return &memStore{
		users:      make(map[int64]*core.User),
		categories: make(map[string]*core.Category),
	}
}

func (s *memStore) FindUser(_ context.Context, id int64) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findUserCalls++
	if s.failWith != nil {
		return nil, s.failWith
	}
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (s *memStore) CreateUser(_ context.Context, id int64, name string, wallet core.Money) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	if existing, ok := s.users[id]; ok {
		copied := *existing
		return &copied, nil
	}
	u := &core.User{ID: id, Name: name, Wallet: wallet}
	s.users[id] = u
	copied := *u
	return &copied, nil
}

func (s *memStore) SetBalance(_ context.Context, id int64, amount core.Money) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	u, ok := s.users[id]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	u.Wallet = amount
	copied := *u
	return &copied, nil
}

func (s *memStore) Credit(_ context.Context, id int64, amount core.Money) (*core.User, *core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, nil, s.failWith
	}
	u, ok := s.users[id]
	if !ok {
		return nil, nil, core.ErrUserNotFound
	}
	u.Wallet = u.Wallet.Add(amount)
	txn := s.appendTxn(id, core.Credit, amount, 0)
	copied := *u
	return &copied, txn, nil
}

func (s *memStore) Debit(_ context.Context, id int64, amount core.Money, categoryID int64) (*core.User, *core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, nil, s.failWith
	}
	u, ok := s.users[id]
	if !ok {
		return nil, nil, core.ErrUserNotFound
	}
	if u.Wallet.Paise < amount.Paise {
		return nil, nil, core.ErrInsufficientBalance
	}
	u.Wallet = u.Wallet.Sub(amount)
	txn := s.appendTxn(id, core.Debit, amount, categoryID)
	copied := *u
	return &copied, txn, nil
}

func (s *memStore) FindCategory(_ context.Context, name string) (*core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCategoryCalls++
	if s.failWith != nil {
		return nil, s.failWith
	}
	c, ok := s.categories[core.NormalizeCategory(name)]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (s *memStore) CreateCategory(_ context.Context, name string) (*core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	normalized := core.NormalizeCategory(name)
	if existing, ok := s.categories[normalized]; ok {
		copied := *existing
		return &copied, nil
	}
	s.nextCatID++
	c := &core.Category{ID: s.nextCatID, Name: normalized}
	s.categories[normalized] = c
	copied := *c
	return &copied, nil
}

func (s *memStore) FindLatestTransaction(_ context.Context, userID int64) (*core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	var latest *core.Transaction
	for i := range s.txns {
		t := &s.txns[i]
		if t.UserID != userID {
			continue
		}
		if latest == nil || t.Date.After(latest.Date) || (t.Date.Equal(latest.Date) && t.ID > latest.ID) {
			latest = t
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (s *memStore) RevertTransaction(_ context.Context, txn *core.Transaction) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	idx := -1
	for i := range s.txns {
		if s.txns[i].ID == txn.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, core.ErrNothingToUndo
	}
	s.txns = append(s.txns[:idx], s.txns[idx+1:]...)

	u := s.users[txn.UserID]
	u.Wallet = u.Wallet.Sub(txn.Signed())
	copied := *u
	return &copied, nil
}

func (s *memStore) appendTxn(userID int64, typ core.TransactionType, amount core.Money, categoryID int64) *core.Transaction {
	s.nextTxnID++
	txn := core.Transaction{
		ID:         s.nextTxnID,
		UserID:     userID,
		Type:       typ,
		Amount:     amount,
		CategoryID: categoryID,
		Date:       time.Now().UTC(),
	}
	s.txns = append(s.txns, txn)
	return &txn
}

func (s *memStore) txnCount(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.txns {
		if t.UserID == userID {
			n++
		}
	}
	return n
}

func (s *memStore) balance(userID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID].Wallet.Paise
}

func (s *memStore) categoryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.categories)
}
