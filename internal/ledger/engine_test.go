package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kharcha/internal/cache"
	"kharcha/internal/core"
)

type capturedEvent struct {
	kind    string
	txn     core.Transaction
	balance core.Money
}

type fakePublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (p *fakePublisher) PublishTransactionRecorded(_ context.Context, txn core.Transaction, balance core.Money) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{kind: "recorded", txn: txn, balance: balance})
	return nil
}

func (p *fakePublisher) PublishTransactionReverted(_ context.Context, txn core.Transaction, balance core.Money) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{kind: "reverted", txn: txn, balance: balance})
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type engineFixture struct {
	engine *Engine
	store  *memStore
	cache  *cache.EntryCache
	events *fakePublisher
	clock  *stepClock
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFixture() *engineFixture {
	clock := &stepClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
	cfg := cache.DefaultEntryCacheConfig()
	cfg.Clock = clock.Now

	store := newMemStore()
	entries := cache.NewEntryCache(cfg)
	events := &fakePublisher{}
	return &engineFixture{
		engine: NewEngine(store, entries, events, nil),
		store:  store,
		cache:  entries,
		events: events,
		clock:  clock,
	}
}

func (f *engineFixture) seedUser(t *testing.T, id int64, paise int64) {
	t.Helper()
	if _, err := f.store.CreateUser(context.Background(), id, "tester", core.Money{Paise: paise}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestEngine_EnsureUser_CreatesOnFirstContact(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.engine.EnsureUser(ctx, 42, "harsh")

	u, err := f.store.FindUser(ctx, 42)
	if err != nil || u == nil {
		t.Fatalf("user should exist in store, got %v, %v", u, err)
	}
	if u.Wallet.Paise != 0 {
		t.Errorf("new user balance = %d, want 0", u.Wallet.Paise)
	}
	if cached, ok := f.cache.GetUser(42); !ok || cached.Name != "harsh" {
		t.Errorf("user should be cached after ensure, got %+v, %v", cached, ok)
	}
}

func TestEngine_EnsureUser_CacheHitSkipsStore(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.engine.EnsureUser(ctx, 42, "harsh")
	before := f.store.findUserCalls

	f.engine.EnsureUser(ctx, 42, "harsh")
	if f.store.findUserCalls != before {
		t.Error("cache hit should not reach the store")
	}
}

func TestEngine_EnsureUser_ExpiredEntryForcesReRead(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.engine.EnsureUser(ctx, 42, "harsh")
	before := f.store.findUserCalls

	f.clock.Advance(cache.DefaultUserTTL + time.Second)

	f.engine.EnsureUser(ctx, 42, "harsh")
	if f.store.findUserCalls != before+1 {
		t.Errorf("expired cache entry should force a store re-read, calls %d -> %d", before, f.store.findUserCalls)
	}
}

func TestEngine_EnsureUser_SwallowsStoreErrors(t *testing.T) {
	f := newFixture()
	f.store.failWith = errors.New("store down")

	// Must not panic or surface the failure.
	f.engine.EnsureUser(context.Background(), 42, "harsh")

	if _, ok := f.cache.GetUser(42); ok {
		t.Error("nothing should be cached when the store fails")
	}
}

func TestEngine_Credit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedUser(t, 1, 0)

	res, err := f.engine.Credit(ctx, 1, core.Money{Paise: 10000})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if res.User.Wallet.Paise != 10000 {
		t.Errorf("balance = %d, want 10000", res.User.Wallet.Paise)
	}
	if res.Transaction.Type != core.Credit {
		t.Errorf("txn type = %s, want CREDIT", res.Transaction.Type)
	}
	if cached, ok := f.cache.GetUser(1); !ok || cached.Wallet.Paise != 10000 {
		t.Errorf("cache should hold the new balance, got %+v, %v", cached, ok)
	}
	if f.events.count() != 1 {
		t.Errorf("one recorded event expected, got %d", f.events.count())
	}
}

func TestEngine_Credit_RejectsNegativeWithoutStoreAccess(t *testing.T) {
	f := newFixture()
	f.store.failWith = errors.New("must not be reached")

	_, err := f.engine.Credit(context.Background(), 1, core.Money{Paise: -5})
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
}

func TestEngine_Credit_StoreFailureLeavesCacheUntouched(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedUser(t, 1, 5000)
	f.cache.SetUser(core.User{ID: 1, Name: "tester", Wallet: core.Money{Paise: 5000}})

	f.store.failWith = errors.New("store down")
	if _, err := f.engine.Credit(ctx, 1, core.Money{Paise: 100}); err == nil {
		t.Fatal("expected store error")
	}

	cached, ok := f.cache.GetUser(1)
	if !ok || cached.Wallet.Paise != 5000 {
		t.Errorf("cache must keep the pre-failure snapshot, got %+v, %v", cached, ok)
	}
	if f.events.count() != 0 {
		t.Error("no event should be published on failure")
	}
}

func TestEngine_Debit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedUser(t, 1, 10000)

	res, err := f.engine.Debit(ctx, 1, core.Money{Paise: 3000}, "food")
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if res.User.Wallet.Paise != 7000 {
		t.Errorf("balance = %d, want 7000", res.User.Wallet.Paise)
	}
	if res.Transaction.CategoryName != "food" {
		t.Errorf("category = %q, want food", res.Transaction.CategoryName)
	}
	if cached, ok := f.cache.GetCategory("food"); !ok || cached.Name != "food" {
		t.Error("resolved category should be written back into the cache")
	}
}

func TestEngine_Debit_InsufficientBalance(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedUser(t, 1, 1000)

	_, err := f.engine.Debit(ctx, 1, core.Money{Paise: 2000}, "food")
	if !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if f.store.balance(1) != 1000 {
		t.Errorf("balance changed to %d on a rejected debit", f.store.balance(1))
	}
	if f.store.txnCount(1) != 0 {
		t.Error("rejected debit must not insert a row")
	}
}

func TestEngine_Debit_ValidationBeforeStore(t *testing.T) {
	f := newFixture()
	f.store.failWith = errors.New("must not be reached")
	ctx := context.Background()

	if _, err := f.engine.Debit(ctx, 1, core.Money{Paise: -1}, "food"); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("negative amount: err = %v, want ErrInvalidAmount", err)
	}
	if _, err := f.engine.Debit(ctx, 1, core.Money{Paise: 100}, "   "); !errors.Is(err, core.ErrEmptyCategory) {
		t.Errorf("blank category: err = %v, want ErrEmptyCategory", err)
	}
}

func TestEngine_Debit_CategoryNormalizationDedupes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedUser(t, 1, 100000)

	if _, err := f.engine.Debit(ctx, 1, core.Money{Paise: 100}, "Food "); err != nil {
		t.Fatalf("first debit: %v", err)
	}
	if _, err := f.engine.Debit(ctx, 1, core.Money{Paise: 100}, "food"); err != nil {
		t.Fatalf("second debit: %v", err)
	}

	if f.store.categoryCount() != 1 {
		t.Errorf("category rows = %d, want 1 (normalized dedupe)", f.store.categoryCount())
	}
}

func TestEngine_Debit_CategoryCacheSkipsStoreLookup(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedUser(t, 1, 100000)

	if _, err := f.engine.Debit(ctx, 1, core.Money{Paise: 100}, "food"); err != nil {
		t.Fatalf("first debit: %v", err)
	}
	before := f.store.findCategoryCalls

	if _, err := f.engine.Debit(ctx, 1, core.Money{Paise: 100}, "food"); err != nil {
		t.Fatalf("second debit: %v", err)
	}
	if f.store.findCategoryCalls != before {
		t.Error("cached category should skip the store lookup")
	}
}

func TestEngine_ConcurrentDebitsCannotOverdraw(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedUser(t, 1, 10000) // 100.00, room for exactly 3 debits of 30.00

	const attempts = 10
	var (
		wg        sync.WaitGroup
		successes int64
		mu        sync.Mutex
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Debit(ctx, 1, core.Money{Paise: 3000}, "food")
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if !errors.Is(err, core.ErrInsufficientBalance) {
				t.Errorf("unexpected debit error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 3 {
		t.Errorf("successful debits = %d, want exactly 3", successes)
	}
	if got := f.store.balance(1); got != 1000 {
		t.Errorf("final balance = %d, want 1000", got)
	}
	if got := f.store.txnCount(1); got != 3 {
		t.Errorf("rows inserted = %d, want 3", got)
	}
}

func TestEngine_SetBalance(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedUser(t, 1, 12345)

	res, err := f.engine.SetBalance(ctx, 1, core.Money{Paise: 50000})
	if err != nil {
		t.Fatalf("set balance: %v", err)
	}
	if res.User.Wallet.Paise != 50000 {
		t.Errorf("balance = %d, want 50000", res.User.Wallet.Paise)
	}
	if f.store.txnCount(1) != 0 {
		t.Error("set balance must not append a transaction row")
	}
	if cached, ok := f.cache.GetUser(1); !ok || cached.Wallet.Paise != 50000 {
		t.Error("cache should hold the set balance")
	}
}

func TestEngine_Undo_ReversesCredit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedUser(t, 1, 0)

	if _, err := f.engine.Credit(ctx, 1, core.Money{Paise: 10000}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	res, err := f.engine.Undo(ctx, 1)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if res.User.Wallet.Paise != 0 {
		t.Errorf("balance after undo = %d, want 0", res.User.Wallet.Paise)
	}
	if f.store.txnCount(1) != 0 {
		t.Errorf("rows after undo = %d, want 0", f.store.txnCount(1))
	}
}

func TestEngine_Undo_ReversesDebit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedUser(t, 1, 10000)

	if _, err := f.engine.Debit(ctx, 1, core.Money{Paise: 3000}, "food"); err != nil {
		t.Fatalf("debit: %v", err)
	}

	res, err := f.engine.Undo(ctx, 1)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if res.User.Wallet.Paise != 10000 {
		t.Errorf("balance after undo = %d, want 10000", res.User.Wallet.Paise)
	}
}

func TestEngine_Undo_NothingToUndo(t *testing.T) {
	f := newFixture()
	f.seedUser(t, 1, 5000)

	_, err := f.engine.Undo(context.Background(), 1)
	if !errors.Is(err, core.ErrNothingToUndo) {
		t.Fatalf("err = %v, want ErrNothingToUndo", err)
	}
	if f.store.balance(1) != 5000 {
		t.Error("failed undo must not mutate the balance")
	}
}

func TestEngine_Undo_SetWalletNotUndoable(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedUser(t, 1, 0)

	// Simulate a historical SET_WALLET row (e.g. from an import).
	f.store.mu.Lock()
	f.store.appendTxn(1, core.SetWallet, core.Money{Paise: 5000}, 0)
	f.store.mu.Unlock()

	_, err := f.engine.Undo(ctx, 1)
	if !errors.Is(err, core.ErrSetNotUndoable) {
		t.Fatalf("err = %v, want ErrSetNotUndoable", err)
	}
}

func TestEngine_BalanceConservation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedUser(t, 1, 0)

	credits := []int64{10000, 2500, 499}
	debits := []int64{3000, 1200}

	var want int64
	for _, c := range credits {
		if _, err := f.engine.Credit(ctx, 1, core.Money{Paise: c}); err != nil {
			t.Fatalf("credit %d: %v", c, err)
		}
		want += c
	}
	for _, d := range debits {
		if _, err := f.engine.Debit(ctx, 1, core.Money{Paise: d}, "misc"); err != nil {
			t.Fatalf("debit %d: %v", d, err)
		}
		want -= d
	}

	if got := f.store.balance(1); got != want {
		t.Errorf("balance = %d, want sum(credits)-sum(debits) = %d", got, want)
	}
}

// The worked end-to-end sequence: 0 -> +100 -> -30 food -> 70 -> undo -> 100.
func TestEngine_CreditDebitUndoFlow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.seedUser(t, 1, 0)

	if _, err := f.engine.Credit(ctx, 1, core.Money{Paise: 10000}); err != nil {
		t.Fatalf("credit: %v", err)
	}
	res, err := f.engine.Debit(ctx, 1, core.Money{Paise: 3000}, "food")
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if res.User.Wallet.Paise != 7000 {
		t.Fatalf("after debit balance = %d, want 7000", res.User.Wallet.Paise)
	}

	undone, err := f.engine.Undo(ctx, 1)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if undone.User.Wallet.Paise != 10000 {
		t.Errorf("after undo balance = %d, want 10000", undone.User.Wallet.Paise)
	}
	if undone.Transaction.Type != core.Debit {
		t.Errorf("undone txn type = %s, want DEBIT", undone.Transaction.Type)
	}
	if f.store.txnCount(1) != 1 {
		t.Errorf("rows = %d, want 1 (credit only)", f.store.txnCount(1))
	}
}
