package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"barborsa/internal/catalog"
	"barborsa/internal/checkout"
)

// Simulate 通过随机订单驱动结账流程，用于演示和压测行情。
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if opts.Orders <= 0 {
		return errors.New("orders must be positive")
	}
	if opts.MaxQty <= 0 {
		opts.MaxQty = 3
	}
	if opts.Payment == "" {
		opts.Payment = "cash"
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

	events := a.newController(st, scope)
	processor := checkout.NewProcessor(st, scope, events, a.Logger)

	committed := 0
	skipped := 0
	for i := 0; i < opts.Orders; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		docs, err := st.GetSnapshot(ctx, scope.Products())
		if err != nil {
			return err
		}
		products, err := catalog.DecodeAll(docs)
		if err != nil {
			return err
		}

		inStock := products[:0:0]
		for _, p := range products {
			if p.Stock > 0 {
				inStock = append(inStock, p)
			}
		}
		if len(inStock) == 0 {
			a.Logger.Warn().Int("committed", committed).Msg("catalog sold out, stopping simulation")
			break
		}

		target := inStock[rand.Intn(len(inStock))]
		qty := 1 + rand.Int63n(opts.MaxQty)
		if qty > target.Stock {
			qty = target.Stock
		}

		cart := checkout.Cart{{ProductID: target.ID, Quantity: qty}}
		if _, err := processor.Submit(ctx, cart, opts.Payment); err != nil {
			skipped++
			a.Logger.Warn().Err(err).Str("product", target.ID).Msg("simulated order rejected")
			continue
		}
		committed++
	}

	fmt.Printf("simulated %d orders (%d rejected)\n", committed, skipped)
	return nil
}
