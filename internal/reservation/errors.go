package reservation

import (
	"errors"
	"fmt"
)

var (
	ErrBagNotFound                = errors.New("rescue bag not found")
	ErrSoldOut                    = errors.New("rescue bag sold out")
	ErrReservationFailed          = errors.New("reservation failed")
	ErrReservationPartiallyFailed = errors.New("reservation partially failed")
)

// PartialFailure means the order row exists but the bag's quantity was not
// decremented. Operators reconcile it out of band.
type PartialFailure struct {
	OrderID string
	BagID   string
	Cause   error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("order %s created but bag %s not decremented: %v", e.OrderID, e.BagID, e.Cause)
}

func (e *PartialFailure) Is(target error) bool { return target == ErrReservationPartiallyFailed }

func (e *PartialFailure) Unwrap() error { return e.Cause }

var errNoRowDecremented = errors.New("no row decremented")
