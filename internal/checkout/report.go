package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"barborsa/internal/store"
	"barborsa/internal/tenant"
)

// DailyReport mirrors the venue's running totals for the current day.
type DailyReport struct {
	TotalRevenue int64
	TotalCount   int64
}

// ReadDailyReport fetches today's totals; a missing document reads as zero.
func ReadDailyReport(ctx context.Context, st store.Store, scope tenant.Scope) (DailyReport, error) {
	doc, err := st.GetDocument(ctx, scope.DailyReport())
	if errors.Is(err, store.ErrNotFound) {
		return DailyReport{}, nil
	}
	if err != nil {
		return DailyReport{}, fmt.Errorf("read daily report: %w", err)
	}
	return DailyReport{
		TotalRevenue: store.Int64Field(doc.Fields, "totalRevenue", 0),
		TotalCount:   store.Int64Field(doc.Fields, "totalCount", 0),
	}, nil
}

// SalesEntry is one committed checkout in the history feed.
type SalesEntry struct {
	ID            string
	At            time.Time
	Total         int64
	TotalQuantity int64
	PaymentMethod string
}

// ListSales reads the venue's sales history ordered oldest first.
func ListSales(ctx context.Context, st store.Store, scope tenant.Scope) ([]SalesEntry, error) {
	docs, err := st.GetSnapshot(ctx, scope.SalesHistory())
	if err != nil {
		return nil, fmt.Errorf("snapshot sales history: %w", err)
	}

	entries := make([]SalesEntry, 0, len(docs))
	for _, doc := range docs {
		entry := SalesEntry{
			ID:            doc.ID,
			Total:         store.Int64Field(doc.Fields, "total", 0),
			TotalQuantity: store.Int64Field(doc.Fields, "totalQuantity", 0),
		}
		entry.PaymentMethod, _ = doc.Fields["paymentMethod"].(string)
		if ms := store.Int64Field(doc.Fields, "timestamp", 0); ms > 0 {
			entry.At = time.UnixMilli(ms)
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].At.Before(entries[j].At) })
	return entries, nil
}
