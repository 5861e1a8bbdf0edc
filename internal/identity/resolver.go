package identity

import (
	"context"
	"fmt"
)

// Store looks a principal up in each profile table. A missing row is
// (nil, nil), not an error.
type Store interface {
	Customer(ctx context.Context, id string) (*Customer, error)
	Restaurant(ctx context.Context, id string) (*Restaurant, error)
}

// LookupOrder is the precedence applied when a principal has rows in more
// than one profile table: the first match wins.
var LookupOrder = []Role{RoleCustomer, RoleRestaurant}

type Resolver struct {
	Store Store
}

func (r *Resolver) Resolve(ctx context.Context, principalID string) (Profile, error) {
	for _, role := range LookupOrder {
		switch role {
		case RoleCustomer:
			c, err := r.Store.Customer(ctx, principalID)
			if err != nil {
				return Profile{}, fmt.Errorf("lookup customer: %w", err)
			}
			if c != nil {
				return Profile{Role: RoleCustomer, Customer: c}, nil
			}
		case RoleRestaurant:
			rs, err := r.Store.Restaurant(ctx, principalID)
			if err != nil {
				return Profile{}, fmt.Errorf("lookup restaurant: %w", err)
			}
			if rs != nil {
				return Profile{Role: RoleRestaurant, Restaurant: rs}, nil
			}
		}
	}
	return Profile{Role: RoleNone}, nil
}
