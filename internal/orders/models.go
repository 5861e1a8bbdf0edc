package orders

import "time"

const (
	PaymentPayAtPickup = "pay_at_pickup"
	PaymentPending     = "pending"
)

type Order struct {
	ID              string    `json:"id"`
	CustomerID      string    `json:"customer_id"`
	RescueBagID     string    `json:"rescue_bag_id"`
	RestaurantID    string    `json:"restaurant_id"`
	Quantity        int       `json:"quantity"`
	TotalPriceCents int       `json:"total_price_cents"`
	Status          Status    `json:"status"`
	PaymentMethod   string    `json:"payment_method"`
	PaymentStatus   string    `json:"payment_status"`
	CreatedAt       time.Time `json:"created_at"`
}
