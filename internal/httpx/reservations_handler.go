package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ariefcatur/go-rescue-bags/internal/auth"
	"github.com/ariefcatur/go-rescue-bags/internal/identity"
	"github.com/ariefcatur/go-rescue-bags/internal/orders"
	"github.com/ariefcatur/go-rescue-bags/internal/redisx"
	"github.com/ariefcatur/go-rescue-bags/internal/reservation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type Reserver interface {
	Reserve(ctx context.Context, s *identity.Session, bagID string) (string, error)
}

type OrderReader interface {
	GetOrder(ctx context.Context, id string) (orders.Order, error)
}

type ReservationsHandler struct {
	Flow     Reserver
	Orders   OrderReader
	Sessions SessionOpener
	Redis    *redis.Client
	Limiter  *KeyedLimiter
	Log      logrus.FieldLogger
}

type reserveReq struct {
	BagID string `json:"bag_id"`
}

type reserveResp struct {
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	Reconcile bool   `json:"reconcile,omitempty"`
}

type orderStatus struct {
	OrderID string        `json:"order_id"`
	Status  orders.Status `json:"status"`
}

type cachedStatus struct {
	orderStatus
	CustomerID string `json:"customer_id"`
}

func (h *ReservationsHandler) Register(r chi.Router) {
	r.Post("/reservations", h.reserve)
	r.Get("/orders/{id}", h.getOrder)
}

func (h *ReservationsHandler) reserve(w http.ResponseWriter, r *http.Request) {
	var req reserveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if _, err := uuid.Parse(req.BagID); err != nil {
		writeError(w, http.StatusBadRequest, "bag_id must be a uuid")
		return
	}
	principal := auth.PrincipalID(r.Context())
	if h.Limiter != nil && !h.Limiter.Allow(principal) {
		writeError(w, http.StatusTooManyRequests, "too many reservation attempts")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	sess, err := session(ctx, h.Sessions)
	if err != nil {
		h.Log.WithError(err).Error("session open failed")
		writeError(w, http.StatusServiceUnavailable, reservation.ErrReservationFailed.Error())
		return
	}

	orderID, err := h.Flow.Reserve(ctx, sess, req.BagID)
	customerID, _ := sess.CustomerID()
	switch {
	case err == nil:
		h.cacheStatus(ctx, customerID, orderID, orders.StatusPending)
		writeJSON(w, http.StatusCreated, reserveResp{OrderID: orderID, Status: string(orders.StatusPending)})
	case errors.Is(err, reservation.ErrReservationPartiallyFailed):
		h.cacheStatus(ctx, customerID, orderID, orders.StatusPending)
		writeJSON(w, http.StatusCreated, reserveResp{OrderID: orderID, Status: string(orders.StatusPending), Reconcile: true})
	case errors.Is(err, identity.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, reservation.ErrBagNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, reservation.ErrSoldOut):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusServiceUnavailable, reservation.ErrReservationFailed.Error())
	}
}

func (h *ReservationsHandler) cacheStatus(ctx context.Context, customerID, orderID string, st orders.Status) {
	if h.Redis == nil {
		return
	}
	b, _ := json.Marshal(cachedStatus{CustomerID: customerID, orderStatus: orderStatus{OrderID: orderID, Status: st}})
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}

// getOrder serves the status from cache, falling back to the database. Only
// the order's customer may read it.
func (h *ReservationsHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(orderID); err != nil {
		writeError(w, http.StatusBadRequest, "order id must be a uuid")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	sess, err := session(ctx, h.Sessions)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "session unavailable")
		return
	}
	customerID, ok := sess.CustomerID()
	if !ok {
		writeError(w, http.StatusNotFound, (&identity.ProfileNotFoundError{Role: identity.RoleCustomer}).Error())
		return
	}

	// 1) cache
	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if b, err := h.Redis.Get(ctx, key).Bytes(); err == nil {
			var c cachedStatus
			if json.Unmarshal(b, &c) == nil && c.CustomerID == customerID {
				writeJSON(w, http.StatusOK, c.orderStatus)
				return
			}
		}
	}

	// 2) database
	o, err := h.Orders.GetOrder(ctx, orderID)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && o.CustomerID != customerID) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		h.Log.WithError(err).WithField("order_id", orderID).Error("order lookup failed")
		writeError(w, http.StatusServiceUnavailable, "order lookup failed")
		return
	}
	h.cacheStatus(ctx, customerID, orderID, o.Status)
	writeJSON(w, http.StatusOK, orderStatus{OrderID: orderID, Status: o.Status})
}
