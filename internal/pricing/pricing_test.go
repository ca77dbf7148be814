package pricing

import "testing"

func TestNormalizeRounding(t *testing.T) {
	cases := []struct {
		raw  int64
		want int64
	}{
		{100, 100},
		{101, 100},
		{104, 100},
		{105, 110},
		{109, 110},
		{110, 110},
		{-3, 0}, // clamped to min afterwards
	}

	for _, tc := range cases {
		got := Normalize(tc.raw, 0, 10000)
		if got.Price != tc.want {
			t.Errorf("Normalize(%d): price = %d, want %d", tc.raw, got.Price, tc.want)
		}
	}
}

func TestNormalizeClamp(t *testing.T) {
	low := Normalize(12, 50, 500)
	if low.Price != 50 || low.RawPrice != 50 {
		t.Fatalf("below min should pin both fields to min, got %+v", low)
	}

	high := Normalize(777, 50, 500)
	if high.Price != 500 || high.RawPrice != 500 {
		t.Fatalf("above max should pin both fields to max, got %+v", high)
	}

	mid := Normalize(103, 50, 500)
	if mid.RawPrice != 103 || mid.Price != 100 {
		t.Fatalf("in-range raw should stay unrounded, got %+v", mid)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for raw := int64(-50); raw <= 1200; raw++ {
		first := Normalize(raw, 40, 1000)
		second := Normalize(first.RawPrice, 40, 1000)
		if first != second {
			t.Fatalf("Normalize not idempotent at %d: %+v then %+v", raw, first, second)
		}
	}
}

func TestNormalizeBounds(t *testing.T) {
	for raw := int64(-100); raw <= 800; raw += 7 {
		got := Normalize(raw, 50, 500)
		if got.Price < 50 || got.Price > 500 {
			t.Fatalf("Normalize(%d) price %d escaped bounds", raw, got.Price)
		}
		if got.Price%Quantum != 0 && got.Price != 50 && got.Price != 500 {
			t.Fatalf("Normalize(%d) price %d off the grid without clamping", raw, got.Price)
		}
	}
}

func TestApplyPurchase(t *testing.T) {
	out := ApplyPurchase(100, 50, 500, 3)
	if out.RawPrice != 103 {
		t.Fatalf("raw = %d, want 103", out.RawPrice)
	}
	if out.Price != 100 {
		t.Fatalf("price = %d, want 100 (ones=3 rounds down)", out.Price)
	}
	if out.LineTotal != 300 {
		t.Fatalf("line total = %d, want 300", out.LineTotal)
	}
}

func TestApplyPurchaseCrossesBoundary(t *testing.T) {
	out := ApplyPurchase(104, 50, 500, 1)
	if out.RawPrice != 105 || out.Price != 110 {
		t.Fatalf("got %+v, want raw 105 price 110", out.Quote)
	}
	if out.LineTotal != 110 {
		t.Fatalf("line total = %d, want 110", out.LineTotal)
	}
}

func TestApplyPurchaseAtCeiling(t *testing.T) {
	out := ApplyPurchase(498, 50, 500, 10)
	if out.RawPrice != 500 || out.Price != 500 {
		t.Fatalf("ceiling purchase should pin to max, got %+v", out.Quote)
	}
	if out.LineTotal != 5000 {
		t.Fatalf("line total = %d, want 5000", out.LineTotal)
	}
}
