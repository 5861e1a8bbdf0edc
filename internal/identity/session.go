package identity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/go-rescue-bags/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Session is the resolved identity of one signed-in principal. It is built
// by Sessions.Open and handed to whatever needs it.
type Session struct {
	PrincipalID string  `json:"principal_id"`
	Profile     Profile `json:"profile"`
}

func (s *Session) Role() Role {
	if s == nil {
		return RoleNone
	}
	return s.Profile.Role
}

// Require fails with *ProfileNotFoundError unless the session acts as role.
func (s *Session) Require(role Role) error {
	if s.Role() != role {
		return &ProfileNotFoundError{Role: role}
	}
	return nil
}

// CustomerID is the customer row id when the session is a customer.
func (s *Session) CustomerID() (string, bool) {
	if s.Role() != RoleCustomer || s.Profile.Customer == nil {
		return "", false
	}
	return s.Profile.Customer.ID, true
}

// Sessions owns the session lifecycle. Resolved profiles are cached in
// Redis; a cache outage degrades to probing the store every time.
type Sessions struct {
	Resolver *Resolver
	Redis    *redis.Client
	Log      logrus.FieldLogger
}

func (m *Sessions) Open(ctx context.Context, principalID string) (*Session, error) {
	key := fmt.Sprintf(redisx.KeySession, principalID)
	if m.Redis != nil {
		if b, err := m.Redis.Get(ctx, key).Bytes(); err == nil {
			var p Profile
			if err := json.Unmarshal(b, &p); err == nil {
				return &Session{PrincipalID: principalID, Profile: p}, nil
			}
		} else if err != redis.Nil {
			m.log().WithError(err).Warn("session cache read failed")
		}
	}
	return m.Refresh(ctx, principalID)
}

// Refresh re-resolves the profile. Call it after anything that may have
// created or changed a profile row.
func (m *Sessions) Refresh(ctx context.Context, principalID string) (*Session, error) {
	p, err := m.Resolver.Resolve(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if m.Redis != nil {
		key := fmt.Sprintf(redisx.KeySession, principalID)
		b, _ := json.Marshal(p)
		if err := m.Redis.Set(ctx, key, b, redisx.TTLSession).Err(); err != nil {
			m.log().WithError(err).Warn("session cache write failed")
		}
	}
	return &Session{PrincipalID: principalID, Profile: p}, nil
}

// Close tears the session down on sign-out.
func (m *Sessions) Close(ctx context.Context, principalID string) error {
	if m.Redis == nil {
		return nil
	}
	return m.Redis.Del(ctx, fmt.Sprintf(redisx.KeySession, principalID)).Err()
}

func (m *Sessions) log() logrus.FieldLogger {
	if m.Log == nil {
		return logrus.StandardLogger()
	}
	return m.Log
}
