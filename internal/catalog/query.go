// Package catalog lists the restaurants a customer can rescue food from,
// nearest first.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ariefcatur/go-rescue-bags/internal/geo"
	"github.com/ariefcatur/go-rescue-bags/internal/metrics"
	"github.com/sirupsen/logrus"
)

// RadiusKm bounds how far from the customer a restaurant may be.
const RadiusKm = 7.0

var ErrCatalogUnavailable = errors.New("catalog unavailable")

// Store returns restaurants that are verified and active, each with all of
// its bags.
type Store interface {
	ListVisible(ctx context.Context) ([]Restaurant, error)
}

type Entry struct {
	Restaurant
	DistanceKm *float64 `json:"distance_km,omitempty"`
	Distance   string   `json:"distance,omitempty"`
}

type Query struct {
	Store Store
	Log   logrus.FieldLogger
}

// Run returns the visible catalog. With a nil origin the store order is kept
// and no distance is attached; otherwise restaurants beyond RadiusKm are
// dropped and the rest sorted nearest first. Restaurants without bags are
// never returned.
func (q *Query) Run(ctx context.Context, origin *geo.Coordinates) ([]Entry, error) {
	rs, err := q.Store.ListVisible(ctx)
	if err != nil {
		metrics.CatalogFailures.Inc()
		if q.Log != nil {
			q.Log.WithError(err).Error("catalog fetch failed")
		}
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}

	out := make([]Entry, 0, len(rs))
	for _, r := range rs {
		if len(r.Bags) == 0 {
			continue
		}
		e := Entry{Restaurant: r}
		if origin != nil {
			if !geo.IsWithinRadius(*origin, r.Location, RadiusKm) {
				continue
			}
			d := geo.DistanceKm(*origin, r.Location)
			e.DistanceKm = &d
			e.Distance = geo.FormatDistance(d)
		}
		out = append(out, e)
	}

	if origin != nil {
		sort.SliceStable(out, func(i, j int) bool { return *out[i].DistanceKm < *out[j].DistanceKm })
	}
	return out, nil
}

// FilterByName keeps entries whose name contains q, ignoring case. Order is
// preserved.
func FilterByName(entries []Entry, q string) []Entry {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return entries
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Name), q) {
			out = append(out, e)
		}
	}
	return out
}
