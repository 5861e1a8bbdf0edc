// Package onboarding creates profile rows for new principals and handles
// email verification of partner applications.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/ariefcatur/go-rescue-bags/internal/identity"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidInput     = errors.New("invalid onboarding input")
	ErrAlreadyOnboarded = errors.New("profile already exists")
	ErrTokenNotFound    = errors.New("verification token not found")
)

type VerifyStatus string

const (
	StatusVerified        VerifyStatus = "verified"
	StatusAlreadyVerified VerifyStatus = "already_verified"
)

type Request struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
}

type Application struct {
	Role  string `json:"role"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Store persists profiles and pending applications. Insert* report false
// when a row with that id already exists.
type Store interface {
	InsertCustomer(ctx context.Context, r Request) (bool, error)
	InsertRestaurant(ctx context.Context, r Request) (bool, error)
	InsertPending(ctx context.Context, token string, a Application) error
	// MarkVerified reports whether this call flipped the submission to verified.
	MarkVerified(ctx context.Context, token string) (bool, error)
	PendingExists(ctx context.Context, token string) (bool, error)
}

// Refresher re-resolves a principal's session after its profile changed.
type Refresher interface {
	Refresh(ctx context.Context, principalID string) (*identity.Session, error)
}

type Service struct {
	Store    Store
	Sessions Refresher
	Log      logrus.FieldLogger
}

func (s *Service) Onboard(ctx context.Context, r Request) error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	if _, err := uuid.Parse(r.UserID); err != nil {
		return fmt.Errorf("%w: userId must be a uuid", ErrInvalidInput)
	}
	role, err := identity.ParseRole(r.Role)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if r.Email != "" {
		if _, err := mail.ParseAddress(r.Email); err != nil {
			return fmt.Errorf("%w: bad email", ErrInvalidInput)
		}
	}
	if role == identity.RoleCustomer && r.Phone == "" {
		return fmt.Errorf("%w: phone is required", ErrInvalidInput)
	}

	var inserted bool
	switch role {
	case identity.RoleCustomer:
		inserted, err = s.Store.InsertCustomer(ctx, r)
	case identity.RoleRestaurant:
		inserted, err = s.Store.InsertRestaurant(ctx, r)
	}
	if err != nil {
		return fmt.Errorf("insert %s: %w", role, err)
	}
	if !inserted {
		return ErrAlreadyOnboarded
	}

	if s.Sessions != nil {
		if _, err := s.Sessions.Refresh(ctx, r.UserID); err != nil {
			s.Log.WithError(err).WithField("principal_id", r.UserID).Warn("session refresh after onboarding failed")
		}
	}
	return nil
}

// Apply stores a pending submission and returns its verification token.
func (s *Service) Apply(ctx context.Context, a Application) (string, error) {
	if _, err := identity.ParseRole(a.Role); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if strings.TrimSpace(a.Name) == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(a.Email); err != nil {
		return "", fmt.Errorf("%w: bad email", ErrInvalidInput)
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := s.Store.InsertPending(ctx, token, a); err != nil {
		return "", err
	}
	return token, nil
}

// Verify is idempotent: verifying twice answers StatusAlreadyVerified.
func (s *Service) Verify(ctx context.Context, token string) (VerifyStatus, error) {
	if token == "" {
		return "", ErrTokenNotFound
	}
	flipped, err := s.Store.MarkVerified(ctx, token)
	if err != nil {
		return "", err
	}
	if flipped {
		return StatusVerified, nil
	}
	ok, err := s.Store.PendingExists(ctx, token)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrTokenNotFound
	}
	return StatusAlreadyVerified, nil
}
