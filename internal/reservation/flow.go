// Package reservation turns a customer's pick into an order while keeping
// a bag from being sold more times than it has units.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-rescue-bags/internal/identity"
	kafkax "github.com/ariefcatur/go-rescue-bags/internal/kafka"
	"github.com/ariefcatur/go-rescue-bags/internal/metrics"
	"github.com/ariefcatur/go-rescue-bags/internal/orders"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Flow struct {
	// Tx, when set, replaces Store and Locker.
	Tx     TxRunner
	Store  Store
	Locker Locker

	// optional; nil disables the event
	Reserved kafkax.Publisher
	Partial  kafkax.Publisher

	Service string
	Log     logrus.FieldLogger
}

type outcome struct {
	order   orders.Order
	partial error
}

// Reserve books one unit of bagID for the session's customer and returns the
// new order id.
//
// Read, order insert and decrement run under the bag's lock (or row lock),
// so a concurrent caller observes the decremented quantity. The decrement is
// still conditional on stock remaining, which keeps the quantity
// non-negative even if a lock lease lapses. Events go out after the lock is
// released.
func (f *Flow) Reserve(ctx context.Context, s *identity.Session, bagID string) (string, error) {
	customerID, ok := s.CustomerID()
	if !ok {
		metrics.Reservations.WithLabelValues("rejected").Inc()
		return "", &identity.ProfileNotFoundError{Role: identity.RoleCustomer}
	}
	log := f.log().WithFields(logrus.Fields{"customer_id": customerID, "bag_id": bagID})

	var (
		res   outcome
		fnErr error
	)
	err := f.runner().InBagTx(ctx, bagID, func(st Store) error {
		res, fnErr = f.reserveLocked(ctx, st, customerID, bagID)
		return fnErr
	})
	switch {
	case errors.Is(fnErr, ErrBagNotFound):
		metrics.Reservations.WithLabelValues("rejected").Inc()
		return "", ErrBagNotFound
	case errors.Is(fnErr, ErrSoldOut):
		metrics.Reservations.WithLabelValues("sold_out").Inc()
		return "", ErrSoldOut
	case fnErr != nil:
		metrics.Reservations.WithLabelValues("failed").Inc()
		log.WithError(fnErr).Warn("reservation failed")
		return "", fnErr
	case err != nil:
		metrics.Reservations.WithLabelValues("failed").Inc()
		log.WithError(err).Warn("reservation failed")
		return "", fmt.Errorf("%w: %v", ErrReservationFailed, err)
	}

	order := res.order
	if res.partial != nil {
		metrics.Reservations.WithLabelValues("partial").Inc()
		log.WithError(res.partial).WithField("order_id", order.ID).Error("order created without inventory decrement")
		f.publish(ctx, f.Partial, order.ID, orders.EventReservationPartial, orders.ReservationPartialPayload{
			OrderID: order.ID, RescueBagID: order.RescueBagID, Reason: res.partial.Error(),
		})
		return order.ID, &PartialFailure{OrderID: order.ID, BagID: order.RescueBagID, Cause: res.partial}
	}

	metrics.Reservations.WithLabelValues("ok").Inc()
	log.WithField("order_id", order.ID).Info("bag reserved")
	f.publish(ctx, f.Reserved, order.ID, orders.EventOrderReserved, orders.OrderReservedPayload{
		OrderID:         order.ID,
		CustomerID:      customerID,
		RescueBagID:     order.RescueBagID,
		RestaurantID:    order.RestaurantID,
		Quantity:        order.Quantity,
		TotalPriceCents: order.TotalPriceCents,
	})
	return order.ID, nil
}

// reserveLocked runs with the bag held. A failed decrement after the order
// insert is reported in outcome.partial, not as an error, so a transactional
// runner keeps the order.
func (f *Flow) reserveLocked(ctx context.Context, st Store, customerID, bagID string) (outcome, error) {
	bag, err := st.Bag(ctx, bagID)
	if errors.Is(err, ErrBagNotFound) {
		return outcome{}, ErrBagNotFound
	}
	if err != nil {
		return outcome{}, fmt.Errorf("%w: read bag: %v", ErrReservationFailed, err)
	}
	if !bag.Available() {
		return outcome{}, ErrSoldOut
	}

	order := orders.Order{
		ID:              uuid.NewString(),
		CustomerID:      customerID,
		RescueBagID:     bag.ID,
		RestaurantID:    bag.RestaurantID,
		Quantity:        1,
		TotalPriceCents: bag.DiscountedPriceCents,
		Status:          orders.StatusPending,
		PaymentMethod:   orders.PaymentPayAtPickup,
		PaymentStatus:   orders.PaymentPending,
	}
	orderID, err := st.CreateOrder(ctx, order)
	if err != nil {
		return outcome{}, fmt.Errorf("%w: create order: %v", ErrReservationFailed, err)
	}
	order.ID = orderID

	decremented, err := st.DecrementBag(ctx, bag.ID)
	if err == nil && !decremented {
		err = errNoRowDecremented
	}
	return outcome{order: order, partial: err}, nil
}

func (f *Flow) runner() TxRunner {
	if f.Tx != nil {
		return f.Tx
	}
	return &LockedStore{Store: f.Store, Locker: f.Locker}
}

func (f *Flow) publish(ctx context.Context, p kafkax.Publisher, orderID, eventType string, payload any) {
	if p == nil {
		return
	}
	kafkax.PublishEvent(ctx, p, orders.PartitionKey(orderID), eventType, orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      f.Service,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	})
}

func (f *Flow) log() logrus.FieldLogger {
	if f.Log == nil {
		return logrus.StandardLogger()
	}
	return f.Log
}
