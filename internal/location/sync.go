package location

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ariefcatur/go-rescue-bags/internal/geo"
	kafkax "github.com/ariefcatur/go-rescue-bags/internal/kafka"
	"github.com/ariefcatur/go-rescue-bags/internal/metrics"
	"github.com/ariefcatur/go-rescue-bags/internal/orders"
	"github.com/ariefcatur/go-rescue-bags/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type CustomerStore interface {
	UpdateCustomerLocation(ctx context.Context, id string, at geo.Coordinates, when time.Time) error
}

// Sync writes queued customer fixes to the customer row.
type Sync struct {
	Store CustomerStore
	Redis *redis.Client
	Log   logrus.FieldLogger
}

func (s *Sync) HandleLocationUpdated(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.log().WithError(err).Warn("dropping undecodable location event")
		metrics.ConsumedEvents.WithLabelValues(orders.EventCustomerLocationUpdated, "dropped").Inc()
		return nil
	}
	if env.EventType != orders.EventCustomerLocationUpdated {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, "location", env.EventID)
	if s.Redis != nil {
		if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[orders.CustomerLocationPayload](env.Payload)
	if err != nil {
		s.log().WithError(err).Warn("dropping location event with bad payload")
		metrics.ConsumedEvents.WithLabelValues(env.EventType, "dropped").Inc()
		return nil
	}
	at := geo.Coordinates{Latitude: p.Latitude, Longitude: p.Longitude}
	if err := s.Store.UpdateCustomerLocation(ctx, p.CustomerID, at, p.UpdatedAt); err != nil {
		s.log().WithError(err).WithField("customer_id", p.CustomerID).Error("persist customer location failed")
		metrics.ConsumedEvents.WithLabelValues(env.EventType, "error").Inc()
		return err
	}

	if s.Redis != nil {
		_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}
	metrics.ConsumedEvents.WithLabelValues(env.EventType, "ok").Inc()
	return nil
}

func (s *Sync) log() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}
