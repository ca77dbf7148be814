package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"barborsa/internal/catalog"
	"barborsa/internal/decay"
	"barborsa/internal/market"
	"barborsa/internal/store/memory"
	"barborsa/internal/tenant"
)

func newTestService(t *testing.T) (*Service, *memory.Store, tenant.Scope) {
	t.Helper()
	st := memory.New()
	scope, err := tenant.NewScope("v1")
	if err != nil {
		t.Fatalf("scope: %v", err)
	}
	events := market.NewController(st, scope, zerolog.Nop())
	ticker := decay.NewTicker(st, scope, events, time.Minute, zerolog.Nop())
	return New(nil, st, scope, events, ticker, 0, zerolog.Nop()), st, scope
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

func TestProcessTickSweepsExpiredEvent(t *testing.T) {
	svc, st, scope := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	seedProduct(t, st, scope, catalog.Product{ID: "p1", Name: "Beer", StartPrice: 100, RawPrice: 50, Price: 50, Min: 50, Max: 300, Stock: 10, LastTradeAt: now})

	b := st.Batch()
	b.Set(scope.MarketEvent(), map[string]any{
		"mode":      string(market.ModeCrash),
		"startedAt": now.Add(-10 * time.Minute).UnixMilli(),
		"endsAt":    now.Add(-time.Minute).UnixMilli(),
	}, false)
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("seed event: %v", err)
	}

	if err := svc.ProcessTick(ctx, now); err != nil {
		t.Fatalf("ProcessTick: %v", err)
	}

	event, err := svc.events.Current(ctx)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if event.Mode != market.ModeIdle {
		t.Fatalf("mode after tick = %s, want idle", event.Mode)
	}
	p1 := getProduct(t, st, scope, "p1")
	if p1.Price != 100 {
		t.Fatalf("price after sweep = %d, want reverted 100", p1.Price)
	}
}

func TestProcessTickDecayGatedByToggle(t *testing.T) {
	svc, st, scope := newTestService(t)
	ctx := context.Background()
	stale := time.Now().Add(-time.Hour)

	seedProduct(t, st, scope, catalog.Product{ID: "p1", Name: "Beer", StartPrice: 100, RawPrice: 101, Price: 100, Min: 50, Max: 300, Stock: 10, LastTradeAt: stale})

	if err := svc.ProcessTick(ctx, time.Now()); err != nil {
		t.Fatalf("ProcessTick (toggle off): %v", err)
	}
	if p := getProduct(t, st, scope, "p1"); p.RawPrice != 101 {
		t.Fatalf("product decayed while auto market off: %+v", p)
	}

	if err := decay.SetAutoMarket(ctx, st, scope, true); err != nil {
		t.Fatalf("SetAutoMarket: %v", err)
	}
	if err := svc.ProcessTick(ctx, time.Now()); err != nil {
		t.Fatalf("ProcessTick (toggle on): %v", err)
	}
	if p := getProduct(t, st, scope, "p1"); p.RawPrice != 100 {
		t.Fatalf("product did not decay with auto market on: %+v", p)
	}
}
