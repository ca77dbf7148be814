// Package checkout turns a cart into one atomic store batch: stock
// decrements, demand repricing (or event immunity), the daily report
// increments, an immutable sales-history entry, and the ticker update for the
// displays. Either the whole batch commits or nothing does.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"barborsa/internal/catalog"
	"barborsa/internal/display"
	"barborsa/internal/market"
	"barborsa/internal/pricing"
	"barborsa/internal/store"
	"barborsa/internal/tenant"
)

var (
	// ErrEmptyCart rejects a checkout without lines.
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrInvalidQuantity rejects non-positive line quantities.
	ErrInvalidQuantity = errors.New("checkout: quantity must be positive")
	// ErrUnknownProduct rejects lines whose product id is not in the catalog.
	ErrUnknownProduct = errors.New("checkout: unknown product")
	// ErrInsufficientStock rejects lines exceeding the committed stock.
	ErrInsufficientStock = errors.New("checkout: insufficient stock")
	// ErrMissingPayment rejects a checkout without a payment method.
	ErrMissingPayment = errors.New("checkout: payment method required")
)

// Line is one cart position.
type Line struct {
	ProductID string
	Quantity  int64
}

// Cart is the ephemeral client-side order being checked out.
type Cart []Line

// ReceiptLine reports the priced outcome of one cart line.
type ReceiptLine struct {
	ProductID string
	Name      string
	Quantity  int64
	UnitPrice int64
	LineTotal int64
}

// Receipt confirms a committed order.
type Receipt struct {
	OrderID       string
	Lines         []ReceiptLine
	Total         int64
	TotalQuantity int64
	PaymentMethod string
	At            time.Time
}

// Processor applies carts against one venue.
type Processor struct {
	store  store.Store
	scope  tenant.Scope
	events *market.Controller
	logger zerolog.Logger

	now   func() time.Time
	newID func() string
}

// NewProcessor wires a checkout processor for one venue.
func NewProcessor(st store.Store, scope tenant.Scope, events *market.Controller, logger zerolog.Logger) *Processor {
	return &Processor{
		store:  st,
		scope:  scope,
		events: events,
		logger: logger.With().Str("component", "checkout").Str("venue", scope.Venue()).Logger(),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// Submit validates the cart against the current catalog snapshot and commits
// the order. Validation failures and commit errors leave every document
// untouched; the caller clears its cart only on success.
func (pr *Processor) Submit(ctx context.Context, cart Cart, paymentMethod string) (Receipt, error) {
	if len(cart) == 0 {
		return Receipt{}, ErrEmptyCart
	}
	if paymentMethod == "" {
		return Receipt{}, ErrMissingPayment
	}
	merged, err := mergeLines(cart)
	if err != nil {
		return Receipt{}, err
	}

	if err := pr.scope.CheckLicence(ctx, pr.store); err != nil {
		return Receipt{}, err
	}

	event, err := pr.events.Current(ctx)
	if err != nil {
		return Receipt{}, err
	}

	docs, err := pr.store.GetSnapshot(ctx, pr.scope.Products())
	if err != nil {
		return Receipt{}, fmt.Errorf("snapshot products: %w", err)
	}
	products, err := catalog.DecodeAll(docs)
	if err != nil {
		return Receipt{}, err
	}
	byID := make(map[string]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	now := pr.now()
	batch := pr.store.Batch()

	receipt := Receipt{
		OrderID:       pr.newID(),
		PaymentMethod: paymentMethod,
		At:            now,
	}
	var top ReceiptLine

	for _, line := range merged {
		p, ok := byID[line.ProductID]
		if !ok {
			return Receipt{}, fmt.Errorf("%w: %s", ErrUnknownProduct, line.ProductID)
		}
		if line.Quantity > p.Stock {
			return Receipt{}, fmt.Errorf("%w: %s has %d, requested %d", ErrInsufficientStock, p.Name, p.Stock, line.Quantity)
		}

		update := map[string]any{
			"stock":       p.Stock - line.Quantity,
			"lastTradeAt": now.UnixMilli(),
		}

		var unitPrice int64
		if event.Immune(p) {
			// Event floor price is charged as-is; the accumulator stays put.
			unitPrice = p.Price
		} else {
			out := pricing.ApplyPurchase(p.RawPrice, p.Min, p.Max, line.Quantity)
			unitPrice = out.Price
			update["rawPrice"] = out.RawPrice
			update["price"] = out.Price
		}

		lineTotal := unitPrice * line.Quantity
		batch.Update(pr.scope.Product(p.ID), update)

		rl := ReceiptLine{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  line.Quantity,
			UnitPrice: unitPrice,
			LineTotal: lineTotal,
		}
		receipt.Lines = append(receipt.Lines, rl)
		receipt.Total += lineTotal
		receipt.TotalQuantity += line.Quantity

		if rl.Quantity > top.Quantity {
			top = rl
		}
	}

	batch.Set(pr.scope.Commands(), display.TickerUpdate(display.SaleTicker(top.Name), now), false)
	batch.Set(pr.scope.DailyReport(), map[string]any{
		"totalRevenue": store.Increment(receipt.Total),
		"totalCount":   store.Increment(receipt.TotalQuantity),
	}, true)
	batch.Set(store.Join(pr.scope.SalesHistory(), receipt.OrderID), salesEntry(receipt), false)

	if err := batch.Commit(ctx); err != nil {
		return Receipt{}, fmt.Errorf("commit order: %w", err)
	}

	pr.logger.Info().
		Str("order_id", receipt.OrderID).
		Int64("total", receipt.Total).
		Int64("quantity", receipt.TotalQuantity).
		Str("payment", paymentMethod).
		Msg("order committed")
	return receipt, nil
}

// mergeLines folds duplicate product lines together and validates quantities,
// preserving first-seen order for the ticker tie-break.
func mergeLines(cart Cart) ([]Line, error) {
	index := make(map[string]int, len(cart))
	merged := make([]Line, 0, len(cart))
	for _, line := range cart {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: %d for %s", ErrInvalidQuantity, line.Quantity, line.ProductID)
		}
		if line.ProductID == "" {
			return nil, fmt.Errorf("%w: empty product id", ErrUnknownProduct)
		}
		if i, ok := index[line.ProductID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, line)
	}
	return merged, nil
}

func salesEntry(r Receipt) map[string]any {
	items := make([]any, 0, len(r.Lines))
	for _, line := range r.Lines {
		items = append(items, map[string]any{
			"productId": line.ProductID,
			"name":      line.Name,
			"quantity":  line.Quantity,
			"unitPrice": line.UnitPrice,
			"lineTotal": line.LineTotal,
		})
	}
	return map[string]any{
		"timestamp":     r.At.UnixMilli(),
		"lineItems":     items,
		"total":         r.Total,
		"totalQuantity": r.TotalQuantity,
		"paymentMethod": r.PaymentMethod,
	}
}
