// Package pricing implements the demand-driven price rules: quantization of
// raw prices onto the display grid and the repricing applied by a purchase.
// Everything in this package is pure; persistence is the caller's problem.
package pricing

// Quantum is the display-price grid. Displayed prices are always a multiple
// of this value unless clamping pinned them to a bound.
const Quantum = 10

// Quote pairs the internal raw accumulator with the quantized display price.
type Quote struct {
	RawPrice int64
	Price    int64
}

// Normalize rounds a raw price onto the display grid and clamps it to
// [min, max]. Last digits 1-4 round down, 5-9 round up, 0 stays. When the
// rounded value falls outside the bounds, both the raw and display price are
// pinned to the bound; otherwise the raw value is carried through unrounded.
// Handed min > max it pins to min rather than crashing; bounds are validated
// at product creation, not here.
func Normalize(raw, min, max int64) Quote {
	ones := raw % Quantum
	if ones < 0 {
		ones += Quantum
	}

	var rounded int64
	switch {
	case ones == 0:
		rounded = raw
	case ones <= 4:
		rounded = raw - ones
	default:
		rounded = raw + (Quantum - ones)
	}

	if rounded < min {
		return Quote{RawPrice: min, Price: min}
	}
	if rounded > max {
		return Quote{RawPrice: max, Price: max}
	}
	return Quote{RawPrice: raw, Price: rounded}
}

// PurchaseOutcome is the result of applying a purchase to a product's price.
type PurchaseOutcome struct {
	Quote
	LineTotal int64
}

// ApplyPurchase computes the repriced product after buying qty units. Each
// unit pushes the raw accumulator up by exactly one; the buyer is charged the
// post-purchase display price for the whole quantity.
func ApplyPurchase(raw, min, max, qty int64) PurchaseOutcome {
	quote := Normalize(raw+qty, min, max)
	return PurchaseOutcome{
		Quote:     quote,
		LineTotal: quote.Price * qty,
	}
}
