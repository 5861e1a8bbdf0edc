// Package location tracks where a device last was and refreshes it from the
// device's geolocation capability.
package location

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-rescue-bags/internal/geo"
	"github.com/ariefcatur/go-rescue-bags/internal/identity"
	kafkax "github.com/ariefcatur/go-rescue-bags/internal/kafka"
	"github.com/ariefcatur/go-rescue-bags/internal/orders"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Locator is a single-shot position source.
type Locator interface {
	CurrentPosition(ctx context.Context) (geo.Coordinates, error)
}

// Reported is a Locator over a fix the client already took: either
// coordinates or a W3C error code.
type Reported struct {
	Coords    *geo.Coordinates
	ErrorCode int
}

func (r Reported) CurrentPosition(context.Context) (geo.Coordinates, error) {
	if r.Coords == nil {
		return geo.Coordinates{}, FromCode(r.ErrorCode)
	}
	return *r.Coords, nil
}

type Service struct {
	Cache   *Cache
	Updates kafkax.Publisher // customer.location.updated, optional
	Timeout time.Duration
	Service string
	Log     logrus.FieldLogger
	Now     func() time.Time
}

// RequestLive asks loc for the current position. On success the device cache
// is updated and, for a customer session, the fix is queued for the customer
// row. Neither side effect can fail the request.
func (s *Service) RequestLive(ctx context.Context, loc Locator, deviceKey string, sess *identity.Session) (geo.Coordinates, error) {
	if loc == nil {
		return geo.Coordinates{}, &LocationError{Kind: Unsupported}
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	at, err := loc.CurrentPosition(lctx)
	if err != nil {
		return geo.Coordinates{}, classify(err)
	}
	if !at.Valid() {
		return geo.Coordinates{}, &LocationError{Kind: PositionUnavailable, Cause: errors.New("coordinates out of range")}
	}

	log := s.log().WithField("device", deviceKey)
	if s.Cache != nil && deviceKey != "" {
		if err := s.Cache.Save(ctx, deviceKey, at); err != nil {
			log.WithError(err).Warn("location cache write failed")
		}
	}
	if id, ok := sess.CustomerID(); ok && s.Updates != nil {
		s.publish(ctx, id, at)
	}
	return at, nil
}

func (s *Service) publish(ctx context.Context, customerID string, at geo.Coordinates) {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	kafkax.PublishEvent(ctx, s.Updates, orders.PartitionKey(customerID), orders.EventCustomerLocationUpdated, orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventCustomerLocationUpdated,
		EventVersion:  1,
		OccurredAt:    now,
		Producer:      s.Service,
		CorrelationID: customerID,
		Payload: kafkax.MustMarshal(orders.CustomerLocationPayload{
			CustomerID: customerID,
			Latitude:   at.Latitude,
			Longitude:  at.Longitude,
			UpdatedAt:  now,
		}),
	})
}

func classify(err error) *LocationError {
	var le *LocationError
	switch {
	case errors.As(err, &le):
		return le
	case errors.Is(err, context.DeadlineExceeded):
		return &LocationError{Kind: Timeout, Cause: err}
	default:
		return &LocationError{Kind: Unknown, Cause: err}
	}
}

func (s *Service) log() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}
