package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderReserved           = "OrderReserved"
	EventReservationPartial      = "ReservationPartiallyFailed"
	EventCustomerLocationUpdated = "CustomerLocationUpdated"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderReservedPayload struct {
	OrderID         string `json:"order_id"`
	CustomerID      string `json:"customer_id"`
	RescueBagID     string `json:"rescue_bag_id"`
	RestaurantID    string `json:"restaurant_id"`
	Quantity        int    `json:"quantity"`
	TotalPriceCents int    `json:"total_price_cents"`
}

// ReservationPartialPayload describes an order whose bag was not
// decremented.
type ReservationPartialPayload struct {
	OrderID     string `json:"order_id"`
	RescueBagID string `json:"rescue_bag_id"`
	Reason      string `json:"reason"`
}

type CustomerLocationPayload struct {
	CustomerID string    `json:"customer_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	UpdatedAt  time.Time `json:"location_updated_at"`
}
