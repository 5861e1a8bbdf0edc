package orders

import (
	"context"

	"github.com/ariefcatur/go-rescue-bags/internal/postgres"
	"github.com/google/uuid"
)

type Repo struct{ DB postgres.DB }

// CreateOrder inserts o as a new row and returns its id. Status defaults to
// pending.
func (r *Repo) CreateOrder(ctx context.Context, o Order) (string, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = StatusPending
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO orders(id, customer_id, rescue_bag_id, restaurant_id, quantity,
		                   total_price_cents, status, payment_method, payment_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		o.ID, o.CustomerID, o.RescueBagID, o.RestaurantID, o.Quantity,
		o.TotalPriceCents, string(o.Status), o.PaymentMethod, o.PaymentStatus)
	if err != nil {
		return "", err
	}
	return o.ID, nil
}

func (r *Repo) GetOrder(ctx context.Context, id string) (Order, error) {
	var o Order
	var status string
	err := r.DB.QueryRow(ctx, `
		SELECT id, customer_id, rescue_bag_id, restaurant_id, quantity, total_price_cents,
		       status, payment_method, payment_status, created_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.CustomerID, &o.RescueBagID, &o.RestaurantID, &o.Quantity, &o.TotalPriceCents,
			&status, &o.PaymentMethod, &o.PaymentStatus, &o.CreatedAt)
	o.Status = Status(status)
	return o, err
}
