package httpx

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-rescue-bags/internal/catalog"
	"github.com/ariefcatur/go-rescue-bags/internal/geo"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type LocationLoader interface {
	Load(ctx context.Context, key string) (*geo.Coordinates, error)
}

type CatalogHandler struct {
	Query *catalog.Query
	Cache LocationLoader
	Log   logrus.FieldLogger
}

type catalogResp struct {
	Restaurants   []catalog.Entry `json:"restaurants"`
	LocationKnown bool            `json:"location_known"`
	Unavailable   bool            `json:"unavailable,omitempty"`
}

func (h *CatalogHandler) Register(r chi.Router) {
	r.Get("/restaurants", h.list)
}

func (h *CatalogHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	origin, ok := parseOrigin(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "lat and lng must be valid coordinates")
		return
	}
	if origin == nil && h.Cache != nil {
		if key := deviceKey(r); key != "" {
			at, err := h.Cache.Load(ctx, key)
			if err != nil {
				h.Log.WithError(err).Warn("location cache read failed")
			}
			origin = at
		}
	}

	entries, err := h.Query.Run(ctx, origin)
	if err != nil {
		writeJSON(w, http.StatusOK, catalogResp{Restaurants: []catalog.Entry{}, LocationKnown: origin != nil, Unavailable: true})
		return
	}
	entries = catalog.FilterByName(entries, r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, catalogResp{Restaurants: entries, LocationKnown: origin != nil})
}

// parseOrigin reads lat/lng. Both absent is (nil, true); one absent or
// out of range is (nil, false).
func parseOrigin(r *http.Request) (*geo.Coordinates, bool) {
	qs := r.URL.Query()
	lat, lng := qs.Get("lat"), qs.Get("lng")
	if lat == "" && lng == "" {
		return nil, true
	}
	la, err1 := strconv.ParseFloat(lat, 64)
	lo, err2 := strconv.ParseFloat(lng, 64)
	if err1 != nil || err2 != nil {
		return nil, false
	}
	c := geo.Coordinates{Latitude: la, Longitude: lo}
	if !c.Valid() {
		return nil, false
	}
	return &c, true
}
