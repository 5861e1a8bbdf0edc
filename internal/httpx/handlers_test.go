package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-rescue-bags/internal/auth"
	"github.com/ariefcatur/go-rescue-bags/internal/catalog"
	"github.com/ariefcatur/go-rescue-bags/internal/geo"
	"github.com/ariefcatur/go-rescue-bags/internal/identity"
	"github.com/ariefcatur/go-rescue-bags/internal/location"
	"github.com/ariefcatur/go-rescue-bags/internal/onboarding"
	"github.com/ariefcatur/go-rescue-bags/internal/orders"
	"github.com/ariefcatur/go-rescue-bags/internal/reservation"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

const (
	customerID = "11111111-1111-4111-8111-111111111111"
	otherID    = "22222222-2222-4222-8222-222222222222"
	bagID      = "33333333-3333-4333-8333-333333333333"
	orderID    = "44444444-4444-4444-8444-444444444444"
)

func token(t *testing.T, sub string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}).SignedString(secret)
	require.NoError(t, err)
	return s
}

type fakeSessions struct {
	mu       sync.Mutex
	profiles map[string]identity.Profile
	closed   []string
	err      error
}

func (f *fakeSessions) Open(_ context.Context, id string) (*identity.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return &identity.Session{PrincipalID: id, Profile: f.profiles[id]}, nil
}

func (f *fakeSessions) Refresh(ctx context.Context, id string) (*identity.Session, error) {
	return f.Open(ctx, id)
}

func (f *fakeSessions) Close(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
	return nil
}

func newSessions() *fakeSessions {
	return &fakeSessions{profiles: map[string]identity.Profile{
		customerID: {Role: identity.RoleCustomer, Customer: &identity.Customer{ID: customerID}},
		otherID:    {Role: identity.RoleCustomer, Customer: &identity.Customer{ID: otherID}},
	}}
}

type fakeReserver struct {
	orderID string
	err     error
	got     *identity.Session
}

func (f *fakeReserver) Reserve(_ context.Context, s *identity.Session, _ string) (string, error) {
	f.got = s
	return f.orderID, f.err
}

type fakeOrders map[string]orders.Order

func (f fakeOrders) GetOrder(_ context.Context, id string) (orders.Order, error) {
	o, ok := f[id]
	if !ok {
		return o, pgx.ErrNoRows
	}
	return o, nil
}

type fakeCatalogStore struct {
	rs  []catalog.Restaurant
	err error
}

func (f *fakeCatalogStore) ListVisible(context.Context) ([]catalog.Restaurant, error) {
	return f.rs, f.err
}

type fakeProvider struct {
	user      string
	err       error
	signedOut []string
}

func (f *fakeProvider) ExchangeCode(_ context.Context, code, _ string) (*auth.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &auth.Session{AccessToken: "at-" + code, User: auth.User{ID: f.user}}, nil
}

func (f *fakeProvider) SignOut(_ context.Context, tok string) error {
	f.signedOut = append(f.signedOut, tok)
	return nil
}

type fakeOnboarder struct {
	err      error
	statuses map[string]onboarding.VerifyStatus
	got      onboarding.Request
}

func (f *fakeOnboarder) Onboard(_ context.Context, r onboarding.Request) error {
	f.got = r
	return f.err
}

func (f *fakeOnboarder) Apply(context.Context, onboarding.Application) (string, error) {
	return "tok123", f.err
}

func (f *fakeOnboarder) Verify(_ context.Context, tok string) (onboarding.VerifyStatus, error) {
	st, ok := f.statuses[tok]
	if !ok {
		return "", onboarding.ErrTokenNotFound
	}
	return st, nil
}

var coimbatore = geo.Coordinates{Latitude: 11.0168, Longitude: 76.9558}

type env struct {
	srv       *httptest.Server
	rdb       *redis.Client
	sessions  *fakeSessions
	flow      *fakeReserver
	orders    fakeOrders
	store     *fakeCatalogStore
	provider  *fakeProvider
	onboarder *fakeOnboarder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log, _ := test.NewNullLogger()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	e := &env{
		rdb:      rdb,
		sessions: newSessions(),
		flow:     &fakeReserver{orderID: orderID},
		orders:   fakeOrders{},
		store: &fakeCatalogStore{rs: []catalog.Restaurant{
			{ID: "far", Name: "Far Kitchen", Location: geo.Coordinates{Latitude: 11.10, Longitude: 77.00},
				Bags: []catalog.Bag{{ID: "b1", QuantityAvailable: 1}}},
			{ID: "near", Name: "Annapoorna", Location: geo.Coordinates{Latitude: 11.0200, Longitude: 76.9600},
				Bags: []catalog.Bag{{ID: "b2", QuantityAvailable: 2}}},
			{ID: "mid", Name: "Hari Bhavanam", Location: geo.Coordinates{Latitude: 11.0400, Longitude: 76.9700},
				Bags: []catalog.Bag{{ID: "b3", QuantityAvailable: 1}}},
		}},
		provider:  &fakeProvider{user: customerID},
		onboarder: &fakeOnboarder{statuses: map[string]onboarding.VerifyStatus{"done": onboarding.StatusAlreadyVerified}},
	}
	cache := &location.Cache{Redis: rdb}

	r := NewRouter(log)
	Mount(r, &auth.Verifier{Secret: secret},
		[]Registrar{
			&CatalogHandler{Query: &catalog.Query{Store: e.store, Log: log}, Cache: cache, Log: log},
			&LocationHandler{Service: &location.Service{Cache: cache, Log: log}, Cache: cache, Sessions: e.sessions, Log: log},
		},
		&ReservationsHandler{Flow: e.flow, Orders: e.orders, Sessions: e.sessions, Redis: rdb, Limiter: NewKeyedLimiter(1000, 1000), Log: log},
		&AuthHandler{Provider: e.provider, Sessions: e.sessions, Log: log},
		&OnboardingHandler{Service: e.onboarder, Log: log},
	)
	e.srv = httptest.NewServer(r)
	t.Cleanup(e.srv.Close)
	return e
}

func (e *env) do(t *testing.T, method, path, tok string, body any, hdr ...string) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func names(t *testing.T, body map[string]any) []string {
	t.Helper()
	list, ok := body["restaurants"].([]any)
	require.True(t, ok, "restaurants missing: %v", body)
	out := make([]string, 0, len(list))
	for _, r := range list {
		out = append(out, r.(map[string]any)["name"].(string))
	}
	return out
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	resp, err := http.Get(e.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCatalog_NearestFirstWithinRadius(t *testing.T) {
	e := newEnv(t)
	q := fmt.Sprintf("/api/restaurants?lat=%v&lng=%v", coimbatore.Latitude, coimbatore.Longitude)
	resp, body := e.do(t, http.MethodGet, q, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Annapoorna", "Hari Bhavanam"}, names(t, body))
	assert.Equal(t, true, body["location_known"])
	first := body["restaurants"].([]any)[0].(map[string]any)
	assert.Equal(t, "600 m", first["distance"])
}

func TestCatalog_NoLocationKeepsStoreOrder(t *testing.T) {
	e := newEnv(t)
	resp, body := e.do(t, http.MethodGet, "/api/restaurants", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Far Kitchen", "Annapoorna", "Hari Bhavanam"}, names(t, body))
	assert.Equal(t, false, body["location_known"])
}

func TestCatalog_UsesCachedDeviceLocation(t *testing.T) {
	e := newEnv(t)
	resp, _ := e.do(t, http.MethodPost, "/api/location", "",
		map[string]float64{"latitude": coimbatore.Latitude, "longitude": coimbatore.Longitude}, "X-Device-Id", "dev-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := e.do(t, http.MethodGet, "/api/restaurants?q=anna", "", nil, "X-Device-Id", "dev-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Annapoorna"}, names(t, body))
	assert.Equal(t, true, body["location_known"])
}

func TestCatalog_StoreFailureRendersEmpty(t *testing.T) {
	e := newEnv(t)
	e.store.err = errors.New("connection refused")
	resp, body := e.do(t, http.MethodGet, "/api/restaurants", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["unavailable"])
	assert.Empty(t, body["restaurants"])
}

func TestCatalog_BadCoordinates(t *testing.T) {
	e := newEnv(t)
	for _, q := range []string{"?lat=91&lng=0", "?lat=abc&lng=1", "?lat=1"} {
		resp, _ := e.do(t, http.MethodGet, "/api/restaurants"+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestLocation_ErrorCodeMapsKind(t *testing.T) {
	e := newEnv(t)
	resp, body := e.do(t, http.MethodPost, "/api/location", "", map[string]int{"error_code": 1}, "X-Device-Id", "dev-1")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, string(location.PermissionDenied), body["kind"])
	assert.NotEmpty(t, body["message"])
}

func TestLocation_GetAndClear(t *testing.T) {
	e := newEnv(t)
	tok := token(t, customerID)

	resp, _ := e.do(t, http.MethodGet, "/api/location", tok, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// signed in without a device id: keyed by principal
	resp, _ = e.do(t, http.MethodPost, "/api/location", tok,
		map[string]float64{"latitude": 11.02, "longitude": 76.96})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := e.do(t, http.MethodGet, "/api/location", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 11.02, body["latitude"], 1e-9)

	resp, _ = e.do(t, http.MethodDelete, "/api/location", tok, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = e.do(t, http.MethodGet, "/api/location", tok, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReserve_StatusMapping(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		status    int
		reconcile bool
	}{
		{"ok", nil, http.StatusCreated, false},
		{"partial", &reservation.PartialFailure{OrderID: orderID, BagID: bagID, Cause: errors.New("boom")}, http.StatusCreated, true},
		{"sold out", reservation.ErrSoldOut, http.StatusConflict, false},
		{"not found", reservation.ErrBagNotFound, http.StatusNotFound, false},
		{"no customer", &identity.ProfileNotFoundError{Role: identity.RoleCustomer}, http.StatusNotFound, false},
		{"failed", fmt.Errorf("%w: lock bag: timeout", reservation.ErrReservationFailed), http.StatusServiceUnavailable, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			e.flow.err = tc.err
			resp, body := e.do(t, http.MethodPost, "/api/reservations", token(t, customerID), map[string]string{"bag_id": bagID})
			assert.Equal(t, tc.status, resp.StatusCode)
			if tc.status == http.StatusCreated {
				assert.Equal(t, orderID, body["order_id"])
				assert.Equal(t, tc.reconcile, body["reconcile"] == true)
			}
		})
	}
}

func TestReserve_PassesSession(t *testing.T) {
	e := newEnv(t)
	resp, _ := e.do(t, http.MethodPost, "/api/reservations", token(t, customerID), map[string]string{"bag_id": bagID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, ok := e.flow.got.CustomerID()
	assert.True(t, ok)
	assert.Equal(t, customerID, id)
}

func TestReserve_RequiresToken(t *testing.T) {
	e := newEnv(t)
	resp, _ := e.do(t, http.MethodPost, "/api/reservations", "", map[string]string{"bag_id": bagID})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/api/reservations", "garbage", map[string]string{"bag_id": bagID})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestReserve_BadBagID(t *testing.T) {
	e := newEnv(t)
	resp, _ := e.do(t, http.MethodPost, "/api/reservations", token(t, customerID), map[string]string{"bag_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetOrder_OwnerOnly(t *testing.T) {
	e := newEnv(t)
	e.orders[orderID] = orders.Order{ID: orderID, CustomerID: customerID, Status: orders.StatusConfirmed}

	resp, body := e.do(t, http.MethodGet, "/api/orders/"+orderID, token(t, customerID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "confirmed", body["status"])

	// served from cache now, still owner-checked
	delete(e.orders, orderID)
	resp, body = e.do(t, http.MethodGet, "/api/orders/"+orderID, token(t, customerID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "confirmed", body["status"])
	assert.NotContains(t, body, "customer_id")

	resp, _ = e.do(t, http.MethodGet, "/api/orders/"+orderID, token(t, otherID), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuthCallback_NoAccountSignsOut(t *testing.T) {
	e := newEnv(t)
	e.provider.user = "55555555-5555-4555-8555-555555555555"

	resp, body := e.do(t, http.MethodPost, "/api/auth/callback", "", map[string]string{"code": "c1", "code_verifier": "v", "role": "customer"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "no customer account found", body["error"])
	assert.Equal(t, []string{"at-c1"}, e.provider.signedOut)
}

func TestAuthCallback_OK(t *testing.T) {
	e := newEnv(t)
	resp, body := e.do(t, http.MethodPost, "/api/auth/callback", "", map[string]string{"code": "c1", "role": "customer"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "at-c1", body["access_token"])
	assert.Empty(t, e.provider.signedOut)

	resp, _ = e.do(t, http.MethodPost, "/api/auth/callback", "", map[string]string{"code": "c1", "role": "restaurant"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// profileRows is an identity.Store whose rows can appear mid-test.
type profileRows struct {
	mu          sync.Mutex
	restaurants map[string]*identity.Restaurant
}

func (p *profileRows) Customer(context.Context, string) (*identity.Customer, error) { return nil, nil }

func (p *profileRows) Restaurant(_ context.Context, id string) (*identity.Restaurant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restaurants[id], nil
}

func TestAuthCallback_IgnoresStaleCachedProfile(t *testing.T) {
	log, _ := test.NewNullLogger()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	rows := &profileRows{restaurants: map[string]*identity.Restaurant{}}
	sessions := &identity.Sessions{Resolver: &identity.Resolver{Store: rows}, Redis: rdb, Log: log}
	provider := &fakeProvider{user: otherID}

	// a session opened before onboarding caches "no role"
	sess, err := sessions.Open(context.Background(), otherID)
	require.NoError(t, err)
	require.Equal(t, identity.RoleNone, sess.Role())

	rows.mu.Lock()
	rows.restaurants[otherID] = &identity.Restaurant{ID: otherID, Name: "Annapoorna", Verified: true, IsActive: true}
	rows.mu.Unlock()

	r := NewRouter(log)
	Mount(r, &auth.Verifier{Secret: secret}, nil, &AuthHandler{Provider: provider, Sessions: sessions, Log: log})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	e := &env{srv: srv}

	resp, body := e.do(t, http.MethodPost, "/api/auth/callback", "", map[string]string{"code": "c1", "role": "restaurant"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, provider.signedOut)
	profile, _ := body["profile"].(map[string]any)
	assert.Equal(t, "restaurant", profile["role"])

	sess, err = sessions.Open(context.Background(), otherID)
	require.NoError(t, err)
	assert.Equal(t, identity.RoleRestaurant, sess.Role())
}

func TestAuthCallback_ProviderRejects(t *testing.T) {
	e := newEnv(t)
	e.provider.err = &auth.APIError{Status: 400, Message: "invalid flow state"}
	resp, body := e.do(t, http.MethodPost, "/api/auth/callback", "", map[string]string{"code": "c1", "role": "customer"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid flow state", body["error"])
}

func TestMeAndSignOut(t *testing.T) {
	e := newEnv(t)
	tok := token(t, customerID)
	resp, body := e.do(t, http.MethodGet, "/api/me", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, customerID, body["principal_id"])

	resp, _ = e.do(t, http.MethodPost, "/api/auth/signout", tok, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{tok}, e.provider.signedOut)
	assert.Equal(t, []string{customerID}, e.sessions.closed)
}

func TestOnboard(t *testing.T) {
	e := newEnv(t)
	req := map[string]string{"userId": otherID, "role": "customer", "name": "Priya", "phone": "1"}

	resp, _ := e.do(t, http.MethodPost, "/api/onboard", token(t, customerID), req)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := e.do(t, http.MethodPost, "/api/onboard", token(t, otherID), req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Priya", e.onboarder.got.Name)

	e.onboarder.err = fmt.Errorf("%w: name is required", onboarding.ErrInvalidInput)
	resp, body = e.do(t, http.MethodPost, "/api/onboard", token(t, otherID), req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "name is required")
}

func TestPartnerApplicationAndVerify(t *testing.T) {
	e := newEnv(t)
	resp, body := e.do(t, http.MethodPost, "/api/partner-applications", "", map[string]string{"role": "restaurant", "name": "x", "email": "a@b.c"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "tok123", body["token"])

	resp, body = e.do(t, http.MethodGet, "/api/verify?token=done", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "already_verified", body["status"])

	resp, _ = e.do(t, http.MethodGet, "/api/verify?token=missing", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestKeyedLimiter(t *testing.T) {
	l := NewKeyedLimiter(0.001, 1)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}
