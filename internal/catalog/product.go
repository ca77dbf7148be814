// Package catalog materialises product documents into fully validated
// structs. Defaulting of legacy records (missing rawPrice, missing bounds)
// happens here, once, instead of at every use site.
package catalog

import (
	"errors"
	"fmt"
	"time"

	"barborsa/internal/pricing"
	"barborsa/internal/store"
)

// DefaultMax bounds products whose records predate explicit limits.
const DefaultMax = 1_000_000

var (
	// ErrMissingName indicates a product document without a display name.
	ErrMissingName = errors.New("catalog: product has no name")
	// ErrInvalidBounds indicates min > max or a negative bound.
	ErrInvalidBounds = errors.New("catalog: invalid price bounds")
	// ErrNegativeStock indicates a negative stock value on creation.
	ErrNegativeStock = errors.New("catalog: stock cannot be negative")
)

// Product is the in-memory representation of one catalog entry. Price and
// RawPrice always satisfy Price == Normalize(RawPrice).Price.
type Product struct {
	ID          string
	Name        string
	Type        string
	StartPrice  int64
	RawPrice    int64
	Price       int64
	Min         int64
	Max         int64
	Stock       int64
	LastTradeAt time.Time
	IsLucky     bool
}

// New validates operator input and builds a product priced at the normalized
// base price, which also becomes its reset point.
func New(name, typ string, basePrice, min, max, stock int64) (Product, error) {
	if name == "" {
		return Product{}, ErrMissingName
	}
	if min < 0 || max < min {
		return Product{}, fmt.Errorf("%w: min=%d max=%d", ErrInvalidBounds, min, max)
	}
	if stock < 0 {
		return Product{}, ErrNegativeStock
	}

	quote := pricing.Normalize(basePrice, min, max)
	return Product{
		Name:       name,
		Type:       typ,
		StartPrice: quote.Price,
		RawPrice:   quote.RawPrice,
		Price:      quote.Price,
		Min:        min,
		Max:        max,
		Stock:      stock,
	}, nil
}

// Decode builds a Product from a stored document, applying the legacy
// defaults: rawPrice falls back to price, min to 0, max to DefaultMax.
func Decode(doc store.Document) (Product, error) {
	name, _ := doc.Fields["name"].(string)
	if name == "" {
		return Product{}, fmt.Errorf("%w (id %s)", ErrMissingName, doc.ID)
	}

	p := Product{
		ID:   doc.ID,
		Name: name,
	}
	p.Type, _ = doc.Fields["type"].(string)

	p.Min = store.Int64Field(doc.Fields, "min", 0)
	p.Max = store.Int64Field(doc.Fields, "max", DefaultMax)
	if p.Min < 0 || p.Max < p.Min {
		return Product{}, fmt.Errorf("%w: min=%d max=%d (id %s)", ErrInvalidBounds, p.Min, p.Max, doc.ID)
	}

	p.Price = store.Int64Field(doc.Fields, "price", 0)
	p.RawPrice = store.Int64Field(doc.Fields, "rawPrice", p.Price)
	p.StartPrice = store.Int64Field(doc.Fields, "startPrice", p.Price)
	p.Stock = store.Int64Field(doc.Fields, "stock", 0)
	if p.Stock < 0 {
		p.Stock = 0
	}

	if ms := store.Int64Field(doc.Fields, "lastTradeAt", 0); ms > 0 {
		p.LastTradeAt = time.UnixMilli(ms)
	}
	p.IsLucky, _ = doc.Fields["isLucky"].(bool)

	return p, nil
}

// DecodeAll decodes a snapshot, skipping nothing: one bad record fails the
// whole read so callers never operate on a partial catalog.
func DecodeAll(docs []store.Document) ([]Product, error) {
	products := make([]Product, 0, len(docs))
	for _, doc := range docs {
		p, err := Decode(doc)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

// Fields flattens the product into a store document field map.
func (p Product) Fields() map[string]any {
	fields := map[string]any{
		"name":       p.Name,
		"type":       p.Type,
		"startPrice": p.StartPrice,
		"rawPrice":   p.RawPrice,
		"price":      p.Price,
		"min":        p.Min,
		"max":        p.Max,
		"stock":      p.Stock,
		"isLucky":    p.IsLucky,
	}
	if !p.LastTradeAt.IsZero() {
		fields["lastTradeAt"] = p.LastTradeAt.UnixMilli()
	}
	return fields
}
