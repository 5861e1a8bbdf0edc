package location

import "fmt"

type Kind string

const (
	PermissionDenied    Kind = "permission_denied"
	PositionUnavailable Kind = "position_unavailable"
	Timeout             Kind = "timeout"
	Unsupported         Kind = "unsupported"
	Unknown             Kind = "unknown"
)

var messages = map[Kind]string{
	PermissionDenied:    "Location access was denied. Enable location permission to see restaurants near you.",
	PositionUnavailable: "Your location could not be determined. Check your connection or GPS and try again.",
	Timeout:             "Getting your location took too long. Please try again.",
	Unsupported:         "Location is not supported on this device.",
	Unknown:             "Something went wrong while getting your location.",
}

// LocationError is a failed position request mapped to a stable kind.
type LocationError struct {
	Kind  Kind
	Cause error
}

func (e *LocationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("location %s: %v", e.Kind, e.Cause)
	}
	return "location " + string(e.Kind)
}

// Message is the text shown to the user.
func (e *LocationError) Message() string {
	if m, ok := messages[e.Kind]; ok {
		return m
	}
	return messages[Unknown]
}

func (e *LocationError) Unwrap() error { return e.Cause }

// FromCode maps W3C GeolocationPositionError codes.
func FromCode(code int) *LocationError {
	switch code {
	case 1:
		return &LocationError{Kind: PermissionDenied}
	case 2:
		return &LocationError{Kind: PositionUnavailable}
	case 3:
		return &LocationError{Kind: Timeout}
	}
	return &LocationError{Kind: Unknown, Cause: fmt.Errorf("geolocation error code %d", code)}
}
