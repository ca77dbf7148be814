// Package market implements the event state machine governing global price
// interventions: crash-to-floor and the single-item lucky promotion. The
// active event is a persisted record with an end deadline; a recurring sweep
// ends overdue events, so no in-memory timer has to survive for the whole
// event duration.
package market

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"barborsa/internal/catalog"
	"barborsa/internal/display"
	"barborsa/internal/pricing"
	"barborsa/internal/store"
	"barborsa/internal/tenant"
)

// Mode enumerates the controller states.
type Mode string

const (
	ModeIdle  Mode = "idle"
	ModeCrash Mode = "crash"
	ModeLucky Mode = "lucky_item"
)

var (
	// ErrEventActive rejects starting an event while another one runs.
	ErrEventActive = errors.New("market: another event is active")
	// ErrEventNotActive rejects ending an event that is not running.
	ErrEventNotActive = errors.New("market: no matching active event")
	// ErrNoEligibleProduct rejects a lucky draw with nothing in stock.
	ErrNoEligibleProduct = errors.New("market: no in-stock product for lucky draw")
	// ErrInvalidDuration rejects non-positive event durations.
	ErrInvalidDuration = errors.New("market: event duration must be positive")
)

// Event is the persisted controller state.
type Event struct {
	Mode            Mode
	TargetProductID string
	StartedAt       time.Time
	EndsAt          time.Time
}

// Active reports whether an event is running.
func (e Event) Active() bool { return e.Mode == ModeCrash || e.Mode == ModeLucky }

// Expired reports whether the event deadline has passed.
func (e Event) Expired(now time.Time) bool {
	return e.Active() && !e.EndsAt.IsZero() && !now.Before(e.EndsAt)
}

// Immune reports whether the product's price is exempt from purchase-driven
// repricing under this event.
func (e Event) Immune(p catalog.Product) bool {
	if e.Mode == ModeCrash {
		return true
	}
	if e.Mode == ModeLucky && p.ID == e.TargetProductID {
		return true
	}
	return p.IsLucky
}

// DecaySuppressed reports whether the product is shielded from decay ticks.
func (e Event) DecaySuppressed(p catalog.Product) bool {
	return e.Immune(p)
}

// Controller drives event transitions against one venue's partition. It holds
// no state of its own: every transition re-reads the persisted record, and a
// failed commit leaves the previous state in place.
type Controller struct {
	store  store.Store
	scope  tenant.Scope
	logger zerolog.Logger

	now  func() time.Time
	pick func(n int) int
}

// NewController wires an event controller for one venue.
func NewController(st store.Store, scope tenant.Scope, logger zerolog.Logger) *Controller {
	return &Controller{
		store:  st,
		scope:  scope,
		logger: logger.With().Str("component", "market").Str("venue", scope.Venue()).Logger(),
		now:    time.Now,
		pick:   rand.Intn,
	}
}

// Current reads the persisted event; a missing record means idle.
func (c *Controller) Current(ctx context.Context) (Event, error) {
	doc, err := c.store.GetDocument(ctx, c.scope.MarketEvent())
	if errors.Is(err, store.ErrNotFound) {
		return Event{Mode: ModeIdle}, nil
	}
	if err != nil {
		return Event{}, fmt.Errorf("read market event: %w", err)
	}
	return decodeEvent(doc), nil
}

// StartCrash floors every product and opens a crash window of the given
// duration. Rejected with ErrEventActive unless the controller is idle.
func (c *Controller) StartCrash(ctx context.Context, duration time.Duration) (Event, error) {
	if duration <= 0 {
		return Event{}, ErrInvalidDuration
	}

	current, err := c.Current(ctx)
	if err != nil {
		return Event{}, err
	}
	if current.Active() {
		return Event{}, fmt.Errorf("%w (mode %s)", ErrEventActive, current.Mode)
	}

	products, err := c.loadCatalog(ctx)
	if err != nil {
		return Event{}, err
	}

	now := c.now()
	event := Event{Mode: ModeCrash, StartedAt: now, EndsAt: now.Add(duration)}

	batch := c.store.Batch()
	for _, p := range products {
		quote := pricing.Normalize(p.Min, p.Min, p.Max)
		batch.Update(c.scope.Product(p.ID), map[string]any{
			"rawPrice":    quote.RawPrice,
			"price":       quote.Price,
			"lastTradeAt": now.UnixMilli(),
		})
	}
	batch.Set(c.scope.MarketEvent(), event.fields(), false)
	batch.Set(c.scope.Commands(), display.CrashStart(now, event.EndsAt, duration), false)

	if err := batch.Commit(ctx); err != nil {
		return Event{}, fmt.Errorf("commit crash start: %w", err)
	}

	c.logger.Info().Time("ends_at", event.EndsAt).Int("products", len(products)).Msg("crash started")
	return event, nil
}

// EndCrash reverts every product to its start price and returns to idle.
func (c *Controller) EndCrash(ctx context.Context) error {
	current, err := c.Current(ctx)
	if err != nil {
		return err
	}
	if current.Mode != ModeCrash {
		return fmt.Errorf("%w: crash not running (mode %s)", ErrEventNotActive, current.Mode)
	}
	return c.endCrash(ctx, current)
}

func (c *Controller) endCrash(ctx context.Context, current Event) error {
	products, err := c.loadCatalog(ctx)
	if err != nil {
		return err
	}

	now := c.now()
	batch := c.store.Batch()
	for _, p := range products {
		quote := pricing.Normalize(p.StartPrice, p.Min, p.Max)
		batch.Update(c.scope.Product(p.ID), map[string]any{
			"rawPrice": quote.RawPrice,
			"price":    quote.Price,
		})
	}
	batch.Set(c.scope.MarketEvent(), Event{Mode: ModeIdle}.fields(), false)
	batch.Set(c.scope.Commands(), display.CrashEnd(now), false)

	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("commit crash end: %w", err)
	}

	c.logger.Info().Int("products", len(products)).Msg("crash ended, prices reverted")
	return nil
}

// StartLucky draws one in-stock product uniformly at random, floors it, and
// opens a promotion window. The winner is committed before any display
// animation runs.
func (c *Controller) StartLucky(ctx context.Context, duration time.Duration) (Event, error) {
	if duration <= 0 {
		return Event{}, ErrInvalidDuration
	}

	current, err := c.Current(ctx)
	if err != nil {
		return Event{}, err
	}
	if current.Active() {
		return Event{}, fmt.Errorf("%w (mode %s)", ErrEventActive, current.Mode)
	}

	products, err := c.loadCatalog(ctx)
	if err != nil {
		return Event{}, err
	}

	stocked := products[:0:0]
	for _, p := range products {
		if p.Stock > 0 {
			stocked = append(stocked, p)
		}
	}
	if len(stocked) == 0 {
		return Event{}, ErrNoEligibleProduct
	}

	winner := stocked[c.pick(len(stocked))]

	now := c.now()
	event := Event{
		Mode:            ModeLucky,
		TargetProductID: winner.ID,
		StartedAt:       now,
		EndsAt:          now.Add(duration),
	}

	quote := pricing.Normalize(winner.Min, winner.Min, winner.Max)
	batch := c.store.Batch()
	batch.Update(c.scope.Product(winner.ID), map[string]any{
		"rawPrice":    quote.RawPrice,
		"price":       quote.Price,
		"isLucky":     true,
		"lastTradeAt": now.UnixMilli(),
	})
	batch.Set(c.scope.MarketEvent(), event.fields(), false)
	batch.Set(c.scope.Commands(), display.LuckyStart(now, event.EndsAt, duration, winner.ID), false)

	if err := batch.Commit(ctx); err != nil {
		return Event{}, fmt.Errorf("commit lucky start: %w", err)
	}

	c.logger.Info().
		Str("product_id", winner.ID).
		Str("product", winner.Name).
		Time("ends_at", event.EndsAt).
		Msg("lucky item drawn")
	return event, nil
}

// EndLucky reverts the promoted product and returns to idle.
func (c *Controller) EndLucky(ctx context.Context) error {
	current, err := c.Current(ctx)
	if err != nil {
		return err
	}
	if current.Mode != ModeLucky {
		return fmt.Errorf("%w: lucky item not running (mode %s)", ErrEventNotActive, current.Mode)
	}
	return c.endLucky(ctx, current)
}

func (c *Controller) endLucky(ctx context.Context, current Event) error {
	doc, err := c.store.GetDocument(ctx, c.scope.Product(current.TargetProductID))
	if err != nil {
		return fmt.Errorf("read lucky product: %w", err)
	}
	p, err := catalog.Decode(doc)
	if err != nil {
		return err
	}

	now := c.now()
	quote := pricing.Normalize(p.StartPrice, p.Min, p.Max)
	batch := c.store.Batch()
	batch.Update(c.scope.Product(p.ID), map[string]any{
		"rawPrice": quote.RawPrice,
		"price":    quote.Price,
		"isLucky":  false,
	})
	batch.Set(c.scope.MarketEvent(), Event{Mode: ModeIdle}.fields(), false)
	batch.Set(c.scope.Commands(), display.LuckyEnd(now, p.ID), false)

	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("commit lucky end: %w", err)
	}

	c.logger.Info().Str("product_id", p.ID).Msg("lucky item ended, price reverted")
	return nil
}

// Sweep ends whichever event has passed its deadline. It is invoked on every
// scheduler tick, so an event outlives neither its window nor the process
// that started it.
func (c *Controller) Sweep(ctx context.Context) error {
	current, err := c.Current(ctx)
	if err != nil {
		return err
	}
	if !current.Expired(c.now()) {
		return nil
	}

	c.logger.Info().Str("mode", string(current.Mode)).Time("ends_at", current.EndsAt).Msg("event deadline passed")
	switch current.Mode {
	case ModeCrash:
		return c.endCrash(ctx, current)
	case ModeLucky:
		return c.endLucky(ctx, current)
	default:
		return nil
	}
}

func (c *Controller) loadCatalog(ctx context.Context) ([]catalog.Product, error) {
	docs, err := c.store.GetSnapshot(ctx, c.scope.Products())
	if err != nil {
		return nil, fmt.Errorf("snapshot products: %w", err)
	}
	return catalog.DecodeAll(docs)
}

func (e Event) fields() map[string]any {
	fields := map[string]any{"mode": string(e.Mode)}
	if e.TargetProductID != "" {
		fields["targetProductId"] = e.TargetProductID
	}
	if !e.StartedAt.IsZero() {
		fields["startedAt"] = e.StartedAt.UnixMilli()
	}
	if !e.EndsAt.IsZero() {
		fields["endsAt"] = e.EndsAt.UnixMilli()
	}
	return fields
}

func decodeEvent(doc store.Document) Event {
	event := Event{Mode: ModeIdle}
	if mode, _ := doc.Fields["mode"].(string); mode != "" {
		event.Mode = Mode(mode)
	}
	event.TargetProductID, _ = doc.Fields["targetProductId"].(string)
	if ms := store.Int64Field(doc.Fields, "startedAt", 0); ms > 0 {
		event.StartedAt = time.UnixMilli(ms)
	}
	if ms := store.Int64Field(doc.Fields, "endsAt", 0); ms > 0 {
		event.EndsAt = time.UnixMilli(ms)
	}
	return event
}
