// Package decay lowers the price of products nobody is buying. One tick
// inspects the catalog snapshot and commits every eligible reduction in a
// single batch; a product keeps drifting down tick after tick until a real
// sale resets its trade clock or it reaches its floor.
package decay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"barborsa/internal/catalog"
	"barborsa/internal/market"
	"barborsa/internal/pricing"
	"barborsa/internal/store"
	"barborsa/internal/tenant"
)

// DefaultTickInterval matches the one-minute cadence of the market.
const DefaultTickInterval = time.Minute

// Ticker evaluates decay for one venue.
type Ticker struct {
	store    store.Store
	scope    tenant.Scope
	events   *market.Controller
	interval time.Duration
	logger   zerolog.Logger

	now func() time.Time
}

// NewTicker wires a decay ticker. A non-positive interval falls back to the
// default minute.
func NewTicker(st store.Store, scope tenant.Scope, events *market.Controller, interval time.Duration, logger zerolog.Logger) *Ticker {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Ticker{
		store:    st,
		scope:    scope,
		events:   events,
		interval: interval,
		logger:   logger.With().Str("component", "decay").Str("venue", scope.Venue()).Logger(),
		now:      time.Now,
	}
}

// RunTick lowers every eligible product's raw price by one and renormalizes,
// committing all reductions atomically. It reports how many products moved.
// The event state is read at batch-construction time; the residual window
// between that read and the commit is accepted rather than locked away.
func (t *Ticker) RunTick(ctx context.Context) (int, error) {
	event, err := t.events.Current(ctx)
	if err != nil {
		return 0, err
	}
	if event.Mode == market.ModeCrash {
		// Global immunity: nothing decays during a crash.
		return 0, nil
	}

	docs, err := t.store.GetSnapshot(ctx, t.scope.Products())
	if err != nil {
		return 0, fmt.Errorf("snapshot products: %w", err)
	}
	products, err := catalog.DecodeAll(docs)
	if err != nil {
		return 0, err
	}

	now := t.now()
	batch := t.store.Batch()
	updated := 0

	for _, p := range products {
		if event.DecaySuppressed(p) {
			continue
		}
		if p.RawPrice <= p.Min {
			continue
		}
		if !p.LastTradeAt.IsZero() && now.Sub(p.LastTradeAt) < t.interval {
			continue
		}

		quote := pricing.Normalize(p.RawPrice-1, p.Min, p.Max)
		// lastTradeAt stays put so decay keeps compounding until a sale.
		batch.Update(t.scope.Product(p.ID), map[string]any{
			"rawPrice": quote.RawPrice,
			"price":    quote.Price,
		})
		updated++
	}

	if updated == 0 {
		return 0, nil
	}
	if err := batch.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit decay tick: %w", err)
	}

	t.logger.Debug().Int("updated", updated).Msg("decay tick applied")
	return updated, nil
}

// AutoMarketEnabled reads the operator toggle gating decay ticks. A missing
// settings document means disabled.
func AutoMarketEnabled(ctx context.Context, st store.Store, scope tenant.Scope) (bool, error) {
	doc, err := st.GetDocument(ctx, scope.Settings())
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read settings: %w", err)
	}
	enabled, _ := doc.Fields["autoMarket"].(bool)
	return enabled, nil
}

// SetAutoMarket flips the operator toggle.
func SetAutoMarket(ctx context.Context, st store.Store, scope tenant.Scope, enabled bool) error {
	batch := st.Batch()
	batch.Set(scope.Settings(), map[string]any{"autoMarket": enabled}, true)
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("commit auto-market toggle: %w", err)
	}
	return nil
}
