package catalog

import (
	"errors"
	"testing"
	"time"

	"barborsa/internal/store"
)

func TestNewNormalizesBasePrice(t *testing.T) {
	p, err := New("Tekila", "spirit", 105, 50, 500, 20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Price != 110 || p.RawPrice != 105 {
		t.Fatalf("price = %d raw = %d, want 110/105", p.Price, p.RawPrice)
	}
	if p.StartPrice != 110 {
		t.Fatalf("startPrice = %d, want normalized display price", p.StartPrice)
	}
}

func TestNewRejectsInvalidBounds(t *testing.T) {
	if _, err := New("Beer", "", 100, 500, 50, 1); !errors.Is(err, ErrInvalidBounds) {
		t.Fatalf("err = %v, want ErrInvalidBounds", err)
	}
	if _, err := New("", "", 100, 0, 500, 1); !errors.Is(err, ErrMissingName) {
		t.Fatalf("err = %v, want ErrMissingName", err)
	}
	if _, err := New("Beer", "", 100, 0, 500, -1); !errors.Is(err, ErrNegativeStock) {
		t.Fatalf("err = %v, want ErrNegativeStock", err)
	}
}

func TestDecodeLegacyDefaults(t *testing.T) {
	// Old records carry only name/price/stock.
	doc := store.Document{ID: "p1", Fields: map[string]any{
		"name":  "Viski",
		"price": float64(250),
		"stock": int64(8),
	}}

	p, err := Decode(doc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.RawPrice != 250 {
		t.Fatalf("rawPrice fallback = %d, want price 250", p.RawPrice)
	}
	if p.StartPrice != 250 {
		t.Fatalf("startPrice fallback = %d, want 250", p.StartPrice)
	}
	if p.Min != 0 || p.Max != DefaultMax {
		t.Fatalf("bounds = [%d,%d], want defaults", p.Min, p.Max)
	}
	if !p.LastTradeAt.IsZero() {
		t.Fatalf("lastTradeAt should be zero, got %v", p.LastTradeAt)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	traded := time.Now().Truncate(time.Millisecond)
	original := Product{
		ID:          "p2",
		Name:        "Vodka",
		Type:        "spirit",
		StartPrice:  200,
		RawPrice:    203,
		Price:       200,
		Min:         100,
		Max:         400,
		Stock:       12,
		LastTradeAt: traded,
		IsLucky:     true,
	}

	decoded, err := Decode(store.Document{ID: "p2", Fields: original.Fields()})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !decoded.LastTradeAt.Equal(original.LastTradeAt) {
		t.Fatalf("lastTradeAt = %v, want %v", decoded.LastTradeAt, original.LastTradeAt)
	}
	decoded.LastTradeAt = time.Time{}
	original.LastTradeAt = time.Time{}
	if decoded != original {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", decoded, original)
	}
}

func TestDecodeRejectsBrokenBounds(t *testing.T) {
	doc := store.Document{ID: "p3", Fields: map[string]any{
		"name": "Raki", "price": int64(90), "min": int64(500), "max": int64(50),
	}}
	if _, err := Decode(doc); !errors.Is(err, ErrInvalidBounds) {
		t.Fatalf("err = %v, want ErrInvalidBounds", err)
	}
}
