package identity

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-rescue-bags/internal/geo"
	"github.com/ariefcatur/go-rescue-bags/internal/postgres"
	"github.com/jackc/pgx/v5"
)

type Repo struct{ DB postgres.DB }

func (r *Repo) Customer(ctx context.Context, id string) (*Customer, error) {
	var (
		c        Customer
		email    *string
		lat, lng *float64
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, phone, email, latitude, longitude, location_updated_at
		FROM customers WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Phone, &email, &lat, &lng, &c.LocationUpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if email != nil {
		c.Email = *email
	}
	if lat != nil && lng != nil {
		c.Location = &geo.Coordinates{Latitude: *lat, Longitude: *lng}
	}
	return &c, nil
}

func (r *Repo) Restaurant(ctx context.Context, id string) (*Restaurant, error) {
	var (
		x            Restaurant
		email, phone *string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, email, phone, verified, is_active
		FROM restaurants WHERE id=$1`, id).
		Scan(&x.ID, &x.Name, &email, &phone, &x.Verified, &x.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if email != nil {
		x.Email = *email
	}
	if phone != nil {
		x.Phone = *phone
	}
	return &x, nil
}

// UpdateCustomerLocation stores the last device fix on the customer row. An
// older fix never overwrites a newer one.
func (r *Repo) UpdateCustomerLocation(ctx context.Context, id string, c geo.Coordinates, at time.Time) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE customers SET latitude=$2, longitude=$3, location_updated_at=$4
		WHERE id=$1 AND (location_updated_at IS NULL OR location_updated_at <= $4)`,
		id, c.Latitude, c.Longitude, at)
	return err
}
