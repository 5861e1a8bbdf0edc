package catalog

import (
	"context"

	"github.com/ariefcatur/go-rescue-bags/internal/postgres"
)

type Repo struct{ DB postgres.DB }

func (r *Repo) ListVisible(ctx context.Context) ([]Restaurant, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, name, address_line, city, postal_code, latitude, longitude,
		       cuisine_types, verified, is_active
		FROM restaurants
		WHERE verified AND is_active
		ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Restaurant
	index := map[string]int{}
	ids := []string{}
	for rows.Next() {
		var x Restaurant
		if err := rows.Scan(&x.ID, &x.Name, &x.AddressLine, &x.City, &x.PostalCode,
			&x.Location.Latitude, &x.Location.Longitude, &x.CuisineTypes, &x.Verified, &x.IsActive); err != nil {
			return nil, err
		}
		index[x.ID] = len(out)
		ids = append(ids, x.ID)
		out = append(out, x)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	bags, err := r.DB.Query(ctx, `
		SELECT id, restaurant_id, title, size, original_price_cents, discounted_price_cents,
		       quantity_available, pickup_start_time, pickup_end_time, is_active
		FROM rescue_bags
		WHERE restaurant_id = ANY($1)
		ORDER BY pickup_start_time, id`, ids)
	if err != nil {
		return nil, err
	}
	defer bags.Close()

	for bags.Next() {
		var b Bag
		if err := bags.Scan(&b.ID, &b.RestaurantID, &b.Title, &b.Size, &b.OriginalPriceCents,
			&b.DiscountedPriceCents, &b.QuantityAvailable, &b.PickupStart, &b.PickupEnd, &b.IsActive); err != nil {
			return nil, err
		}
		if i, ok := index[b.RestaurantID]; ok {
			out[i].Bags = append(out[i].Bags, b)
		}
	}
	return out, bags.Err()
}

// Bag reads a single listing regardless of restaurant visibility.
func (r *Repo) Bag(ctx context.Context, id string) (Bag, error) {
	return r.bag(ctx, `
		SELECT id, restaurant_id, title, size, original_price_cents, discounted_price_cents,
		       quantity_available, pickup_start_time, pickup_end_time, is_active
		FROM rescue_bags WHERE id=$1`, id)
}

// LockBag reads the bag and holds its row lock until the caller's
// transaction ends. r.DB must be a pgx.Tx.
func (r *Repo) LockBag(ctx context.Context, id string) (Bag, error) {
	return r.bag(ctx, `
		SELECT id, restaurant_id, title, size, original_price_cents, discounted_price_cents,
		       quantity_available, pickup_start_time, pickup_end_time, is_active
		FROM rescue_bags WHERE id=$1 FOR UPDATE`, id)
}

func (r *Repo) bag(ctx context.Context, q, id string) (Bag, error) {
	var b Bag
	err := r.DB.QueryRow(ctx, q, id).
		Scan(&b.ID, &b.RestaurantID, &b.Title, &b.Size, &b.OriginalPriceCents,
			&b.DiscountedPriceCents, &b.QuantityAvailable, &b.PickupStart, &b.PickupEnd, &b.IsActive)
	return b, err
}

// DecrementBag takes one unit off the listing only while stock remains. It
// reports false when no row matched, i.e. the bag is gone or already empty.
func (r *Repo) DecrementBag(ctx context.Context, id string) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE rescue_bags SET quantity_available = quantity_available - 1
		WHERE id=$1 AND quantity_available > 0`, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
