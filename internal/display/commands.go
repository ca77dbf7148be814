// Package display owns everything the TV screens consume: the command
// document written alongside each market mutation, ticker copy, and the
// websocket hub that fans committed changes out to connected clients.
package display

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Command types recognised by the display layer.
const (
	TypeTicker     = "TICKER_UPDATE"
	TypeCrashStart = "CRASH_START"
	TypeCrashEnd   = "CRASH_END"
	TypeLuckyStart = "LUCKY_START"
	TypeLuckyEnd   = "LUCKY_END"
)

// Trend values for a product relative to its start price.
const (
	TrendUp     = "UP"
	TrendDown   = "DOWN"
	TrendStable = "STABLE"
)

// TickerUpdate builds the command fields for a breaking-news ticker line.
func TickerUpdate(text string, at time.Time) map[string]any {
	return map[string]any{
		"type":      TypeTicker,
		"data":      text,
		"timestamp": at.UnixMilli(),
	}
}

// SaleTicker renders the breaking-news line for the hottest item of a sale.
func SaleTicker(productName string) string {
	return fmt.Sprintf("SON DAKIKA: %s KAPIS KAPIS GIDIYOR!", productName)
}

// CrashStart builds the event marker announcing a market crash.
func CrashStart(at, endsAt time.Time, duration time.Duration) map[string]any {
	return map[string]any{
		"type":            TypeCrashStart,
		"timestamp":       at.UnixMilli(),
		"crashEnd":        endsAt.UnixMilli(),
		"durationMinutes": int64(duration.Minutes()),
	}
}

// CrashEnd builds the marker closing a crash.
func CrashEnd(at time.Time) map[string]any {
	return map[string]any{
		"type":      TypeCrashEnd,
		"timestamp": at.UnixMilli(),
	}
}

// LuckyStart builds the marker naming the promotion winner. The display may
// run its spin animation, but the winner here is already committed.
func LuckyStart(at, endsAt time.Time, duration time.Duration, productID string) map[string]any {
	return map[string]any{
		"type":            TypeLuckyStart,
		"timestamp":       at.UnixMilli(),
		"endsAt":          endsAt.UnixMilli(),
		"durationMinutes": int64(duration.Minutes()),
		"targetProductId": productID,
	}
}

// LuckyEnd builds the marker closing a lucky-item promotion.
func LuckyEnd(at time.Time, productID string) map[string]any {
	return map[string]any{
		"type":            TypeLuckyEnd,
		"timestamp":       at.UnixMilli(),
		"targetProductId": productID,
	}
}

// Trend classifies a price against its start price.
func Trend(price, startPrice int64) string {
	switch {
	case price > startPrice:
		return TrendUp
	case price < startPrice:
		return TrendDown
	default:
		return TrendStable
	}
}

// ChangePct returns the percentage move from startPrice to price, rounded to
// one decimal. Zero start prices report a flat move.
func ChangePct(price, startPrice int64) decimal.Decimal {
	if startPrice == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(price - startPrice).
		Div(decimal.NewFromInt(startPrice)).
		Mul(decimal.NewFromInt(100)).
		Round(1)
}
