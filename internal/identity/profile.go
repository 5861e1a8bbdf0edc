// Package identity resolves an authenticated principal to the account type
// it acts as and carries that result in an explicit Session.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-rescue-bags/internal/geo"
)

type Role string

const (
	RoleNone       Role = ""
	RoleCustomer   Role = "customer"
	RoleRestaurant Role = "restaurant"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleCustomer, RoleRestaurant:
		return Role(s), nil
	}
	return RoleNone, fmt.Errorf("unknown role %q", s)
}

type Customer struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Phone             string           `json:"phone"`
	Email             string           `json:"email,omitempty"`
	Location          *geo.Coordinates `json:"location,omitempty"`
	LocationUpdatedAt *time.Time       `json:"location_updated_at,omitempty"`
}

type Restaurant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Verified bool   `json:"verified"`
	IsActive bool   `json:"is_active"`
}

// Profile is a tagged union: at most one of Customer and Restaurant is set,
// and Role names which.
type Profile struct {
	Role       Role        `json:"role"`
	Customer   *Customer   `json:"customer,omitempty"`
	Restaurant *Restaurant `json:"restaurant,omitempty"`
}

var ErrProfileNotFound = errors.New("profile not found")

// ProfileNotFoundError is returned when a principal tries to act as a role it
// has no account for.
type ProfileNotFoundError struct {
	Role Role
}

func (e *ProfileNotFoundError) Error() string {
	return fmt.Sprintf("no %s account found", e.Role)
}

func (e *ProfileNotFoundError) Is(target error) bool { return target == ErrProfileNotFound }
