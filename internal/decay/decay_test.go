package decay

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"barborsa/internal/catalog"
	"barborsa/internal/market"
	"barborsa/internal/store/memory"
	"barborsa/internal/tenant"
)

func testScope(t *testing.T) tenant.Scope {
	t.Helper()
	scope, err := tenant.NewScope("v1")
	if err != nil {
		t.Fatalf("scope: %v", err)
	}
	return scope
}

func seedProduct(t *testing.T, st *memory.Store, scope tenant.Scope, p catalog.Product) {
	t.Helper()
	b := st.Batch()
	b.Set(scope.Product(p.ID), p.Fields(), false)
	if err := b.Commit(context.Background()); err != nil {
		t.Fatalf("seed %s: %v", p.ID, err)
	}
}

func getProduct(t *testing.T, st *memory.Store, scope tenant.Scope, id string) catalog.Product {
	t.Helper()
	doc, err := st.GetDocument(context.Background(), scope.Product(id))
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	p, err := catalog.Decode(doc)
	if err != nil {
		t.Fatalf("decode %s: %v", id, err)
	}
	return p
}

func newTestTicker(st *memory.Store, scope tenant.Scope, now time.Time) (*Ticker, *market.Controller) {
	events := market.NewController(st, scope, zerolog.Nop())
	ticker := NewTicker(st, scope, events, time.Minute, zerolog.Nop())
	ticker.now = func() time.Time { return now }
	return ticker, events
}

func TestRunTickEligibility(t *testing.T) {
	st := memory.New()
	scope := testScope(t)
	now := time.Now()
	ticker, _ := newTestTicker(st, scope, now)

	// Stale for 61s: decays. Traded 30s ago: untouched.
	seedProduct(t, st, scope, catalog.Product{ID: "stale", Name: "Beer", StartPrice: 100, RawPrice: 101, Price: 100, Min: 50, Max: 300, Stock: 10, LastTradeAt: now.Add(-61 * time.Second)})
	seedProduct(t, st, scope, catalog.Product{ID: "fresh", Name: "Vodka", StartPrice: 200, RawPrice: 203, Price: 200, Min: 80, Max: 400, Stock: 5, LastTradeAt: now.Add(-30 * time.Second)})

	updated, err := ticker.RunTick(context.Background())
	if err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if updated != 1 {
		t.Fatalf("updated = %d, want 1", updated)
	}

	stale := getProduct(t, st, scope, "stale")
	if stale.RawPrice != 100 || stale.Price != 100 {
		t.Fatalf("stale raw/price = %d/%d, want 100/100", stale.RawPrice, stale.Price)
	}
	if stale.LastTradeAt.UnixMilli() != now.Add(-61*time.Second).UnixMilli() {
		t.Fatal("decay must not touch lastTradeAt")
	}

	fresh := getProduct(t, st, scope, "fresh")
	if fresh.RawPrice != 203 {
		t.Fatalf("fresh product decayed: %+v", fresh)
	}
}

func TestRunTickFloorStop(t *testing.T) {
	st := memory.New()
	scope := testScope(t)
	now := time.Now()
	ticker, _ := newTestTicker(st, scope, now)

	seedProduct(t, st, scope, catalog.Product{ID: "floored", Name: "Beer", StartPrice: 100, RawPrice: 50, Price: 50, Min: 50, Max: 300, Stock: 10, LastTradeAt: now.Add(-time.Hour)})

	updated, err := ticker.RunTick(context.Background())
	if err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if updated != 0 {
		t.Fatalf("updated = %d, floored product must not move", updated)
	}
}

func TestRunTickNeverTradedDecays(t *testing.T) {
	st := memory.New()
	scope := testScope(t)
	now := time.Now()
	ticker, _ := newTestTicker(st, scope, now)

	seedProduct(t, st, scope, catalog.Product{ID: "p1", Name: "Beer", StartPrice: 100, RawPrice: 100, Price: 100, Min: 50, Max: 300, Stock: 10})

	updated, err := ticker.RunTick(context.Background())
	if err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if updated != 1 {
		t.Fatalf("updated = %d, never-traded product should decay", updated)
	}
	p1 := getProduct(t, st, scope, "p1")
	if p1.RawPrice != 99 || p1.Price != 100 {
		t.Fatalf("raw/price = %d/%d, want 99/100 (ones=9 rounds up)", p1.RawPrice, p1.Price)
	}
}

func TestRunTickSuppressedDuringCrash(t *testing.T) {
	st := memory.New()
	scope := testScope(t)
	now := time.Now()
	ticker, events := newTestTicker(st, scope, now)

	seedProduct(t, st, scope, catalog.Product{ID: "p1", Name: "Beer", StartPrice: 100, RawPrice: 100, Price: 100, Min: 50, Max: 300, Stock: 10, LastTradeAt: now.Add(-time.Hour)})

	if _, err := events.StartCrash(context.Background(), 5*time.Minute); err != nil {
		t.Fatalf("StartCrash: %v", err)
	}

	updated, err := ticker.RunTick(context.Background())
	if err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if updated != 0 {
		t.Fatalf("updated = %d, decay must be suppressed during crash", updated)
	}
}

func TestRunTickSkipsLuckyTargetOnly(t *testing.T) {
	st := memory.New()
	scope := testScope(t)
	now := time.Now()
	ticker, _ := newTestTicker(st, scope, now)

	stale := now.Add(-2 * time.Minute)
	seedProduct(t, st, scope, catalog.Product{ID: "lucky", Name: "Beer", StartPrice: 100, RawPrice: 50, Price: 50, Min: 50, Max: 300, Stock: 10, LastTradeAt: stale, IsLucky: true})
	seedProduct(t, st, scope, catalog.Product{ID: "plain", Name: "Vodka", StartPrice: 200, RawPrice: 202, Price: 200, Min: 80, Max: 400, Stock: 5, LastTradeAt: stale})

	b := st.Batch()
	b.Set(scope.MarketEvent(), map[string]any{
		"mode":            string(market.ModeLucky),
		"targetProductId": "lucky",
		"startedAt":       now.Add(-time.Minute).UnixMilli(),
		"endsAt":          now.Add(9 * time.Minute).UnixMilli(),
	}, false)
	if err := b.Commit(context.Background()); err != nil {
		t.Fatalf("seed event: %v", err)
	}

	updated, err := ticker.RunTick(context.Background())
	if err != nil {
		t.Fatalf("RunTick: %v", err)
	}
	if updated != 1 {
		t.Fatalf("updated = %d, only the plain product should decay", updated)
	}
	plain := getProduct(t, st, scope, "plain")
	if plain.RawPrice != 201 {
		t.Fatalf("plain raw = %d, want 201", plain.RawPrice)
	}
	lucky := getProduct(t, st, scope, "lucky")
	if lucky.RawPrice != 50 {
		t.Fatalf("lucky target decayed: %+v", lucky)
	}
}

func TestAutoMarketToggle(t *testing.T) {
	st := memory.New()
	scope := testScope(t)
	ctx := context.Background()

	enabled, err := AutoMarketEnabled(ctx, st, scope)
	if err != nil {
		t.Fatalf("AutoMarketEnabled: %v", err)
	}
	if enabled {
		t.Fatal("toggle should default to off")
	}

	if err := SetAutoMarket(ctx, st, scope, true); err != nil {
		t.Fatalf("SetAutoMarket: %v", err)
	}
	enabled, err = AutoMarketEnabled(ctx, st, scope)
	if err != nil {
		t.Fatalf("AutoMarketEnabled: %v", err)
	}
	if !enabled {
		t.Fatal("toggle should be on after SetAutoMarket(true)")
	}
}
