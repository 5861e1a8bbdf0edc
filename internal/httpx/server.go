package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ariefcatur/go-rescue-bags/internal/auth"
	"github.com/ariefcatur/go-rescue-bags/internal/identity"
	"github.com/ariefcatur/go-rescue-bags/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

const (
	readTimeout  = 3 * time.Second
	writeTimeout = 5 * time.Second
)

// SessionOpener is the part of identity.Sessions the handlers need.
type SessionOpener interface {
	Open(ctx context.Context, principalID string) (*identity.Session, error)
	Refresh(ctx context.Context, principalID string) (*identity.Session, error)
	Close(ctx context.Context, principalID string) error
}

func NewRouter(log logrus.FieldLogger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: log, NoColor: true}))
	r.Use(middleware.Recoverer, metrics.InstrumentHTTP)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// AuthError renders auth middleware rejections.
func AuthError(w http.ResponseWriter, status int, err error) {
	writeError(w, status, err.Error())
}

// session opens the caller's session. Anonymous requests get nil, nil.
func session(ctx context.Context, s SessionOpener) (*identity.Session, error) {
	id := auth.PrincipalID(ctx)
	if id == "" || s == nil {
		return nil, nil
	}
	return s.Open(ctx, id)
}

// deviceKey identifies the device for the location cache. Signed-in callers
// fall back to their principal id.
func deviceKey(r *http.Request) string {
	if k := r.Header.Get("X-Device-Id"); k != "" {
		return k
	}
	return auth.PrincipalID(r.Context())
}
