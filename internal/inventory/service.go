// Package inventory records reservations whose bag decrement did not land,
// so operators can reconcile stock.
package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkax "github.com/ariefcatur/go-rescue-bags/internal/kafka"
	"github.com/ariefcatur/go-rescue-bags/internal/metrics"
	"github.com/ariefcatur/go-rescue-bags/internal/orders"
	"github.com/ariefcatur/go-rescue-bags/internal/postgres"
	"github.com/ariefcatur/go-rescue-bags/internal/redisx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type Anomaly struct {
	ID          string     `json:"id"`
	OrderID     string     `json:"order_id"`
	RescueBagID string     `json:"rescue_bag_id"`
	Reason      string     `json:"reason"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

type AnomalyRepo struct{ DB postgres.DB }

// Record is idempotent per order.
func (r *AnomalyRepo) Record(ctx context.Context, orderID, bagID, reason string) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO reservation_anomalies(id, order_id, rescue_bag_id, reason)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (order_id) DO NOTHING`, uuid.NewString(), orderID, bagID, reason)
	return err
}

func (r *AnomalyRepo) ListOpen(ctx context.Context) ([]Anomaly, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, rescue_bag_id, reason, created_at, resolved_at
		FROM reservation_anomalies WHERE resolved_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Anomaly
	for rows.Next() {
		var a Anomaly
		if err := rows.Scan(&a.ID, &a.OrderID, &a.RescueBagID, &a.Reason, &a.CreatedAt, &a.ResolvedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type Recorder interface {
	Record(ctx context.Context, orderID, bagID, reason string) error
}

type Service struct {
	Repo        Recorder
	Redis       *redis.Client
	Log         logrus.FieldLogger
	ServiceName string
}

// HandlePartial is installed as the consumer handler for
// reservation.partially_failed.
func (s *Service) HandlePartial(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.log().WithError(err).Warn("dropping undecodable reservation event")
		return nil
	}
	if env.EventType != orders.EventReservationPartial {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if s.Redis != nil {
		if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[orders.ReservationPartialPayload](env.Payload)
	if err != nil {
		s.log().WithError(err).Warn("dropping reservation event with bad payload")
		return nil
	}
	if err := s.Repo.Record(ctx, p.OrderID, p.RescueBagID, p.Reason); err != nil {
		metrics.ConsumedEvents.WithLabelValues(env.EventType, "error").Inc()
		return err
	}

	if s.Redis != nil {
		_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}
	metrics.ConsumedEvents.WithLabelValues(env.EventType, "ok").Inc()
	s.log().WithFields(logrus.Fields{
		"order_id": p.OrderID,
		"bag_id":   p.RescueBagID,
		"trace_id": env.TraceID,
	}).Error("reservation anomaly recorded; bag quantity needs reconciliation")
	return nil
}

func (s *Service) log() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}
