package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"barborsa/internal/catalog"
	"barborsa/internal/store"
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

func newTestController(st *memory.Store, scope tenant.Scope, now time.Time) *Controller {
	c := NewController(st, scope, zerolog.Nop())
	c.now = func() time.Time { return now }
	c.pick = func(n int) int { return 0 }
	return c
}

func TestStartCrashFloorsEveryProduct(t *testing.T) {
	st := memory.New()
	scope := testScope(t)
	now := time.Now()

	seedProduct(t, st, scope, catalog.Product{ID: "p1", Name: "Beer", StartPrice: 100, RawPrice: 123, Price: 120, Min: 50, Max: 300, Stock: 10})
	seedProduct(t, st, scope, catalog.Product{ID: "p2", Name: "Vodka", StartPrice: 200, RawPrice: 200, Price: 200, Min: 80, Max: 400, Stock: 5})

	c := newTestController(st, scope, now)
	event, err := c.StartCrash(context.Background(), 5*time.Minute)
	if err != nil {
		t.Fatalf("StartCrash: %v", err)
	}
	if event.Mode != ModeCrash {
		t.Fatalf("mode = %s, want crash", event.Mode)
	}
	if !event.EndsAt.Equal(now.Add(5 * time.Minute)) {
		t.Fatalf("endsAt = %v", event.EndsAt)
	}

	p1 := getProduct(t, st, scope, "p1")
	if p1.Price != 50 || p1.RawPrice != 50 {
		t.Fatalf("p1 not floored: %+v", p1)
	}
	if p1.LastTradeAt.UnixMilli() != now.UnixMilli() {
		t.Fatalf("p1 lastTradeAt = %v, want crash time", p1.LastTradeAt)
	}
	p2 := getProduct(t, st, scope, "p2")
	if p2.Price != 80 || p2.RawPrice != 80 {
		t.Fatalf("p2 not floored: %+v", p2)
	}

	cmd, err := st.GetDocument(context.Background(), scope.Commands())
	if err != nil {
		t.Fatalf("commands: %v", err)
	}
	if cmd.Fields["type"] != "CRASH_START" {
		t.Fatalf("marker type = %v", cmd.Fields["type"])
	}
}

func TestEndCrashRevertsToStartPrice(t *testing.T) {
	st := memory.New()
	scope := testScope(t)
	now := time.Now()

	seedProduct(t, st, scope, catalog.Product{ID: "p1", Name: "Beer", StartPrice: 100, RawPrice: 100, Price: 100, Min: 50, Max: 300, Stock: 10})

	c := newTestController(st, scope, now)
	if _, err := c.StartCrash(context.Background(), time.Minute); err != nil {
		t.Fatalf("StartCrash: %v", err)
	}
	if err := c.EndCrash(context.Background()); err != nil {
		t.Fatalf("EndCrash: %v", err)
	}

	p1 := getProduct(t, st, scope, "p1")
	if p1.Price != 100 || p1.RawPrice != 100 {
		t.Fatalf("p1 not reverted: %+v", p1)
	}

	current, err := c.Current(context.Background())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if current.Mode != ModeIdle {
		t.Fatalf("mode after end = %s", current.Mode)
	}
}

func TestEventExclusivity(t *testing.T) {
	st := memory.New()
	scope := testScope(t)
	now := time.Now()

	seedProduct(t, st, scope, catalog.Product{ID: "p1", Name: "Beer", StartPrice: 100, RawPrice: 100, Price: 100, Min: 50, Max: 300, Stock: 10})
	seedProduct(t, st, scope, catalog.Product{ID: "p2", Name: "Vodka", StartPrice: 200, RawPrice: 200, Price: 200, Min: 80, Max: 400, Stock: 5})

	c := newTestController(st, scope, now)
	if _, err := c.StartLucky(context.Background(), 10*time.Minute); err != nil {
		t.Fatalf("StartLucky: %v", err)
	}

	if _, err := c.StartCrash(context.Background(), time.Minute); !errors.Is(err, ErrEventActive) {
		t.Fatalf("StartCrash during lucky: err = %v, want ErrEventActive", err)
	}
	if _, err := c.StartLucky(context.Background(), time.Minute); !errors.Is(err, ErrEventActive) {
		t.Fatalf("second StartLucky: err = %v, want ErrEventActive", err)
	}

	// Non-target product untouched by the rejected starts.
	p2 := getProduct(t, st, scope, "p2")
	if p2.Price != 200 || p2.RawPrice != 200 {
		t.Fatalf("p2 changed by rejected event: %+v", p2)
	}
}

func TestStartLuckyDrawsInStockWinner(t *testing.T) {
	st := memory.New()
	scope := testScope(t)
	now := time.Now()

	// p1 is out of stock, so the pick-first hook must land on p2.
	seedProduct(t, st, scope, catalog.Product{ID: "p1", Name: "Beer", StartPrice: 100, RawPrice: 100, Price: 100, Min: 50, Max: 300, Stock: 0})
	seedProduct(t, st, scope, catalog.Product{ID: "p2", Name: "Vodka", StartPrice: 200, RawPrice: 200, Price: 200, Min: 80, Max: 400, Stock: 5})

	c := newTestController(st, scope, now)
	event, err := c.StartLucky(context.Background(), 10*time.Minute)
	if err != nil {
		t.Fatalf("StartLucky: %v", err)
	}
	if event.TargetProductID != "p2" {
		t.Fatalf("winner = %s, want p2", event.TargetProductID)
	}

	winner := getProduct(t, st, scope, "p2")
	if !winner.IsLucky || winner.Price != 80 || winner.RawPrice != 80 {
		t.Fatalf("winner not floored/flagged: %+v", winner)
	}
	loser := getProduct(t, st, scope, "p1")
	if loser.IsLucky || loser.Price != 100 {
		t.Fatalf("non-winner touched: %+v", loser)
	}

	if err := c.EndLucky(context.Background()); err != nil {
		t.Fatalf("EndLucky: %v", err)
	}
	winner = getProduct(t, st, scope, "p2")
	if winner.IsLucky || winner.Price != 200 || winner.RawPrice != 200 {
		t.Fatalf("winner not reverted: %+v", winner)
	}
}

func TestStartLuckyWithoutStock(t *testing.T) {
	st := memory.New()
	scope := testScope(t)

	seedProduct(t, st, scope, catalog.Product{ID: "p1", Name: "Beer", StartPrice: 100, RawPrice: 100, Price: 100, Min: 50, Max: 300, Stock: 0})

	c := newTestController(st, scope, time.Now())
	if _, err := c.StartLucky(context.Background(), time.Minute); !errors.Is(err, ErrNoEligibleProduct) {
		t.Fatalf("err = %v, want ErrNoEligibleProduct", err)
	}
}

func TestEndWithoutActiveEvent(t *testing.T) {
	st := memory.New()
	scope := testScope(t)
	c := newTestController(st, scope, time.Now())

	if err := c.EndCrash(context.Background()); !errors.Is(err, ErrEventNotActive) {
		t.Fatalf("EndCrash idle: err = %v", err)
	}
	if err := c.EndLucky(context.Background()); !errors.Is(err, ErrEventNotActive) {
		t.Fatalf("EndLucky idle: err = %v", err)
	}
}

func TestSweepEndsExpiredEvent(t *testing.T) {
	st := memory.New()
	scope := testScope(t)
	now := time.Now()

	seedProduct(t, st, scope, catalog.Product{ID: "p1", Name: "Beer", StartPrice: 100, RawPrice: 100, Price: 100, Min: 50, Max: 300, Stock: 10})

	c := newTestController(st, scope, now)
	if _, err := c.StartCrash(context.Background(), 5*time.Minute); err != nil {
		t.Fatalf("StartCrash: %v", err)
	}

	// Still inside the window: sweep must not end it.
	c.now = func() time.Time { return now.Add(4 * time.Minute) }
	if err := c.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep (running): %v", err)
	}
	current, _ := c.Current(context.Background())
	if current.Mode != ModeCrash {
		t.Fatalf("sweep ended a running event, mode = %s", current.Mode)
	}

	c.now = func() time.Time { return now.Add(5*time.Minute + time.Second) }
	if err := c.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep (expired): %v", err)
	}
	current, _ = c.Current(context.Background())
	if current.Mode != ModeIdle {
		t.Fatalf("sweep did not end expired event, mode = %s", current.Mode)
	}
	p1 := getProduct(t, st, scope, "p1")
	if p1.Price != 100 {
		t.Fatalf("sweep did not revert prices: %+v", p1)
	}
}

func TestFailedCommitKeepsPreviousState(t *testing.T) {
	st := memory.New()
	scope := testScope(t)

	seedProduct(t, st, scope, catalog.Product{ID: "p1", Name: "Beer", StartPrice: 100, RawPrice: 123, Price: 120, Min: 50, Max: 300, Stock: 10})

	boom := errors.New("store down")
	st.FailCommits(boom)

	c := newTestController(st, scope, time.Now())
	if _, err := c.StartCrash(context.Background(), time.Minute); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped store failure", err)
	}

	st.FailCommits(nil)
	current, err := c.Current(context.Background())
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if current.Mode != ModeIdle {
		t.Fatalf("failed start transitioned state: %s", current.Mode)
	}
	p1 := getProduct(t, st, scope, "p1")
	if p1.Price != 120 || p1.RawPrice != 123 {
		t.Fatalf("failed start changed prices: %+v", p1)
	}
	if _, err := st.GetDocument(context.Background(), scope.Commands()); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("failed start still published a marker")
	}
}
