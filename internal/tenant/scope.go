// Package tenant pins every store path to one venue's partition. All engine
// components address documents exclusively through a Scope, so nothing in the
// core can read or write across venue boundaries.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"barborsa/internal/store"
)

var (
	// ErrEmptyVenue indicates a scope was requested without a venue id.
	ErrEmptyVenue = errors.New("tenant: venue id is empty")
	// ErrSuspended indicates the venue's licence is suspended.
	ErrSuspended = errors.New("tenant: venue licence suspended")
)

// Scope addresses one venue's data partition.
type Scope struct {
	venue string
}

// NewScope validates the venue id and returns its scope.
func NewScope(venue string) (Scope, error) {
	venue = strings.TrimSpace(venue)
	if venue == "" {
		return Scope{}, ErrEmptyVenue
	}
	if strings.Contains(venue, "/") {
		return Scope{}, fmt.Errorf("tenant: venue id %q must not contain '/'", venue)
	}
	return Scope{venue: venue}, nil
}

// Venue returns the venue id.
func (s Scope) Venue() string { return s.venue }

// Doc is the venue's own document (licence status and metadata).
func (s Scope) Doc() string { return "companies/" + s.venue }

// Products is the venue's product collection.
func (s Scope) Products() string { return s.Doc() + "/products" }

// Product addresses a single product document.
func (s Scope) Product(id string) string { return store.Join(s.Products(), id) }

// SalesHistory is the append-only checkout log.
func (s Scope) SalesHistory() string { return s.Doc() + "/sales_history" }

// DailyReport is today's revenue accumulator document.
func (s Scope) DailyReport() string { return s.Doc() + "/daily_reports/today" }

// SystemData is the collection holding operator/display documents.
func (s Scope) SystemData() string { return s.Doc() + "/system_data" }

// Commands is the document the display layer watches for ticker and event
// markers.
func (s Scope) Commands() string { return store.Join(s.SystemData(), "commands") }

// Settings holds operator toggles such as auto-market.
func (s Scope) Settings() string { return store.Join(s.SystemData(), "settings") }

// MarketEvent is the persisted event record with its end deadline.
func (s Scope) MarketEvent() string { return store.Join(s.SystemData(), "market_event") }

// CheckLicence fails with ErrSuspended when the venue document carries a
// suspended licence. A missing venue document is treated as active so that
// single-venue deployments need no bootstrap write.
func (s Scope) CheckLicence(ctx context.Context, st store.Store) error {
	doc, err := st.GetDocument(ctx, s.Doc())
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read venue %s: %w", s.venue, err)
	}
	if status, _ := doc.Fields["licenseStatus"].(string); status == "suspended" {
		return ErrSuspended
	}
	return nil
}
