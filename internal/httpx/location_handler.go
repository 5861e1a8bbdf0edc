package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-rescue-bags/internal/geo"
	"github.com/ariefcatur/go-rescue-bags/internal/identity"
	"github.com/ariefcatur/go-rescue-bags/internal/location"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type LiveLocator interface {
	RequestLive(ctx context.Context, loc location.Locator, deviceKey string, sess *identity.Session) (geo.Coordinates, error)
}

type LocationStore interface {
	LocationLoader
	Clear(ctx context.Context, key string) error
}

type LocationHandler struct {
	Service  LiveLocator
	Cache    LocationStore
	Sessions SessionOpener
	Log      logrus.FieldLogger
}

type reportReq struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	ErrorCode int      `json:"error_code"`
}

type locationErrResp struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (h *LocationHandler) Register(r chi.Router) {
	r.Post("/location", h.report)
	r.Get("/location", h.get)
	r.Delete("/location", h.clear)
}

func (h *LocationHandler) report(w http.ResponseWriter, r *http.Request) {
	var req reportReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	key := deviceKey(r)
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing X-Device-Id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	var loc location.Reported
	if req.Latitude != nil && req.Longitude != nil {
		loc.Coords = &geo.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}
	} else {
		loc.ErrorCode = req.ErrorCode
	}

	sess, err := session(ctx, h.Sessions)
	if err != nil {
		// location still works for an unresolved principal
		h.Log.WithError(err).Warn("session open failed")
	}

	at, err := h.Service.RequestLive(ctx, loc, key, sess)
	var le *location.LocationError
	if errors.As(err, &le) {
		writeJSON(w, http.StatusUnprocessableEntity, locationErrResp{Error: le.Error(), Kind: string(le.Kind), Message: le.Message()})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, at)
}

func (h *LocationHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	at, err := h.Cache.Load(ctx, deviceKey(r))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "location cache unavailable")
		return
	}
	if at == nil {
		writeError(w, http.StatusNotFound, "location unknown")
		return
	}
	writeJSON(w, http.StatusOK, at)
}

func (h *LocationHandler) clear(w http.ResponseWriter, r *http.Request) {
	key := deviceKey(r)
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing X-Device-Id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()
	if err := h.Cache.Clear(ctx, key); err != nil {
		writeError(w, http.StatusServiceUnavailable, "location cache unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
