package cache

import (
	"testing"
	"time"

	"kharcha/internal/core"
)

func testEntryCache(clock func() time.Time) *EntryCache {
	cfg := DefaultEntryCacheConfig()
	cfg.Clock = clock
	return NewEntryCache(cfg)
}

func TestEntryCache_UserRoundTrip(t *testing.T) {
	ec := testEntryCache(nil)

	if _, ok := ec.GetUser(7); ok {
		t.Error("unknown user should miss")
	}

	ec.SetUser(core.User{ID: 7, Name: "harsh", Wallet: core.Money{Paise: 10000}})
	u, ok := ec.GetUser(7)
	if !ok {
		t.Fatal("expected user hit")
	}
	if u.Name != "harsh" || u.Wallet.Paise != 10000 {
		t.Errorf("got %+v, want harsh with 10000 paise", u)
	}
}

func TestEntryCache_UserTTL(t *testing.T) {
	clock := newTestClock()
	ec := testEntryCache(clock.Now)

	ec.SetUser(core.User{ID: 1, Name: "a"})
	clock.Advance(DefaultUserTTL + time.Second)

	if _, ok := ec.GetUser(1); ok {
		t.Error("user entry should expire after the user TTL")
	}
}

func TestEntryCache_CategoryTTLOutlivesUserTTL(t *testing.T) {
	clock := newTestClock()
	ec := testEntryCache(clock.Now)

	ec.SetUser(core.User{ID: 1})
	ec.SetCategory(core.Category{ID: 3, Name: "food"})

	clock.Advance(10 * time.Minute)

	if _, ok := ec.GetUser(1); ok {
		t.Error("user entry should be gone after 10m")
	}
	if _, ok := ec.GetCategory("food"); !ok {
		t.Error("category entry should still be fresh after 10m")
	}
}

func TestEntryCache_UpdateUserMergesName(t *testing.T) {
	ec := testEntryCache(nil)

	ec.SetUser(core.User{ID: 5, Name: "harsh", Wallet: core.Money{Paise: 100}})

	// A balance-only store result must not erase the cached name.
	ec.UpdateUser(core.User{ID: 5, Wallet: core.Money{Paise: 7000}})

	u, ok := ec.GetUser(5)
	if !ok {
		t.Fatal("expected user hit")
	}
	if u.Name != "harsh" {
		t.Errorf("name = %q, want merged name harsh", u.Name)
	}
	if u.Wallet.Paise != 7000 {
		t.Errorf("wallet = %d, want 7000", u.Wallet.Paise)
	}
}

func TestEntryCache_UpdateUserInsertsOnMiss(t *testing.T) {
	ec := testEntryCache(nil)

	ec.UpdateUser(core.User{ID: 9, Name: "new", Wallet: core.Money{Paise: 50}})

	u, ok := ec.GetUser(9)
	if !ok || u.Name != "new" || u.Wallet.Paise != 50 {
		t.Errorf("UpdateUser on miss should insert; got %+v, %v", u, ok)
	}
}

func TestEntryCache_CategoryNormalizedLookup(t *testing.T) {
	ec := testEntryCache(nil)

	ec.SetCategory(core.Category{ID: 1, Name: "Food "})

	c, ok := ec.GetCategory("food")
	if !ok {
		t.Fatal("normalized lookup should hit")
	}
	if c.ID != 1 {
		t.Errorf("category id = %d, want 1", c.ID)
	}
	if _, ok := ec.GetCategory("  FOOD"); !ok {
		t.Error("case and whitespace variants should resolve to the same entry")
	}
}

func TestEntryCache_DeleteUser(t *testing.T) {
	ec := testEntryCache(nil)
	ec.SetUser(core.User{ID: 2})
	ec.DeleteUser(2)
	if _, ok := ec.GetUser(2); ok {
		t.Error("deleted user should miss")
	}
}
