package app

import (
	"context"
	"errors"
	"fmt"

	"barborsa/internal/catalog"
	"barborsa/internal/store"
)

// demoMenu is the starter catalog for a fresh venue.
var demoMenu = []struct {
	id        string
	name      string
	typ       string
	basePrice int64
	min       int64
	max       int64
	stock     int64
}{
	{"efes", "Efes", "beer", 100, 50, 300, 100},
	{"tuborg", "Tuborg", "beer", 100, 50, 300, 100},
	{"raki", "Raki (tek)", "spirit", 150, 80, 400, 60},
	{"vodka-shot", "Vodka Shot", "spirit", 120, 60, 350, 80},
	{"gin-tonic", "Gin Tonic", "cocktail", 250, 120, 600, 40},
	{"mojito", "Mojito", "cocktail", 280, 140, 650, 40},
	{"cola", "Cola", "soft", 60, 30, 150, 120},
	{"soda", "Soda", "soft", 40, 20, 100, 120},
}

// Seed populates the venue with the demo menu. Existing products are left
// alone unless overwrite is requested.
func (a *App) Seed(ctx context.Context, opts SeedOptions) error {
	st, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	scope, err := a.scope()
	if err != nil {
		return err
	}

	written := 0
	skipped := 0
	batch := st.Batch()
	for _, item := range demoMenu {
		if !opts.Overwrite {
			_, err := st.GetDocument(ctx, scope.Product(item.id))
			if err == nil {
				skipped++
				continue
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		product, err := catalog.New(item.name, item.typ, item.basePrice, item.min, item.max, item.stock)
		if err != nil {
			return fmt.Errorf("seed %s: %w", item.id, err)
		}
		product.ID = item.id
		batch.Set(scope.Product(product.ID), product.Fields(), false)
		written++
	}

	if written == 0 {
		a.Logger.Info().Int("skipped", skipped).Msg("catalog already seeded")
		return nil
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}

	a.Logger.Info().Int("written", written).Int("skipped", skipped).Msg("demo catalog seeded")
	return nil
}
