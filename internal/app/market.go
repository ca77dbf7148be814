package app

import (
	"context"
	"fmt"
	"time"

	"barborsa/internal/catalog"
	"barborsa/internal/decay"
	"barborsa/internal/market"
	"barborsa/internal/pricing"
)

// StartCrash triggers a market crash for the configured or overridden
// duration.
func (a *App) StartCrash(ctx context.Context, opts EventOptions) error {
	duration := opts.Duration
	if duration <= 0 {
		duration = a.Config.Market.CrashDuration
	}

	st, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	scope, err := a.scope()
	if err != nil {
		return err
	}

	event, err := a.newController(st, scope).StartCrash(ctx, duration)
	if err != nil {
		return err
	}
	fmt.Printf("crash running until %s\n", event.EndsAt.UTC().Format(time.RFC3339))
	return nil
}

// EndCrash ends a running crash ahead of its deadline.
func (a *App) EndCrash(ctx context.Context) error {
	st, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	scope, err := a.scope()
	if err != nil {
		return err
	}
	return a.newController(st, scope).EndCrash(ctx)
}

// StartLucky draws an in-stock product and floors it for the duration.
func (a *App) StartLucky(ctx context.Context, opts EventOptions) error {
	duration := opts.Duration
	if duration <= 0 {
		duration = a.Config.Market.LuckyDuration
	}

	st, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	scope, err := a.scope()
	if err != nil {
		return err
	}

	event, err := a.newController(st, scope).StartLucky(ctx, duration)
	if err != nil {
		return err
	}
	fmt.Printf("lucky item %s until %s\n", event.TargetProductID, event.EndsAt.UTC().Format(time.RFC3339))
	return nil
}

// EndLucky ends a running lucky-item promotion ahead of its deadline.
func (a *App) EndLucky(ctx context.Context) error {
	st, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	scope, err := a.scope()
	if err != nil {
		return err
	}
	return a.newController(st, scope).EndLucky(ctx)
}

// SetAutoMarket flips the toggle gating automatic price decay.
func (a *App) SetAutoMarket(ctx context.Context, enabled bool) error {
	st, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	scope, err := a.scope()
	if err != nil {
		return err
	}
	if err := decay.SetAutoMarket(ctx, st, scope, enabled); err != nil {
		return err
	}
	a.Logger.Info().Bool("enabled", enabled).Msg("auto market toggled")
	return nil
}

// ResetPrices reverts every product to its start price in one batch. Rejected
// while an event is running so the reset cannot fight the reversion.
func (a *App) ResetPrices(ctx context.Context) error {
	st, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	scope, err := a.scope()
	if err != nil {
		return err
	}

	event, err := a.newController(st, scope).Current(ctx)
	if err != nil {
		return err
	}
	if event.Active() {
		return fmt.Errorf("%w: end the running %s event first", market.ErrEventActive, event.Mode)
	}

	docs, err := st.GetSnapshot(ctx, scope.Products())
	if err != nil {
		return err
	}
	products, err := catalog.DecodeAll(docs)
	if err != nil {
		return err
	}

	batch := st.Batch()
	for _, p := range products {
		quote := pricing.Normalize(p.StartPrice, p.Min, p.Max)
		batch.Update(scope.Product(p.ID), map[string]any{
			"rawPrice": quote.RawPrice,
			"price":    quote.Price,
			"isLucky":  false,
		})
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("commit price reset: %w", err)
	}

	a.Logger.Info().Int("products", len(products)).Msg("prices reset to start")
	return nil
}

// AddProduct creates one catalog entry with a normalized base price.
func (a *App) AddProduct(ctx context.Context, opts ProductOptions) error {
	if opts.ID == "" {
		return fmt.Errorf("product id is required")
	}

	product, err := catalog.New(opts.Name, opts.Type, opts.BasePrice, opts.Min, opts.Max, opts.Stock)
	if err != nil {
		return err
	}
	product.ID = opts.ID

	st, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	scope, err := a.scope()
	if err != nil {
		return err
	}

	batch := st.Batch()
	batch.Set(scope.Product(product.ID), product.Fields(), false)
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("commit product %s: %w", product.ID, err)
	}

	a.Logger.Info().Str("product", product.ID).Int64("price", product.Price).Msg("product added")
	return nil
}
