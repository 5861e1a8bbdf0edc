package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-rescue-bags/internal/auth"
	"github.com/ariefcatur/go-rescue-bags/internal/identity"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// Provider is the hosted auth provider.
type Provider interface {
	ExchangeCode(ctx context.Context, code, verifier string) (*auth.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

type AuthHandler struct {
	Provider Provider
	Sessions SessionOpener
	Log      logrus.FieldLogger
}

type callbackReq struct {
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
	Role         string `json:"role"`
}

type callbackResp struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	ExpiresIn    int              `json:"expires_in"`
	Profile      identity.Profile `json:"profile"`
}

// RegisterPublic mounts the routes reachable without a token.
func (h *AuthHandler) RegisterPublic(r chi.Router) {
	r.Post("/auth/callback", h.callback)
}

func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/auth/signout", h.signOut)
	r.Get("/me", h.me)
}

// callback finishes the OAuth redirect. The profile is re-resolved rather
// than read from cache, since the principal may have onboarded since its
// last session. A principal without an account for the requested role is
// signed out again at the provider.
func (h *AuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	var req callbackReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	role, err := identity.ParseRole(req.Role)
	if err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "code and a valid role are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	ps, err := h.Provider.ExchangeCode(ctx, req.Code, req.CodeVerifier)
	var apiErr *auth.APIError
	if errors.As(err, &apiErr) && apiErr.Status < 500 {
		writeError(w, http.StatusUnauthorized, apiErr.Message)
		return
	}
	if err != nil {
		h.Log.WithError(err).Error("code exchange failed")
		writeError(w, http.StatusBadGateway, "auth provider unavailable")
		return
	}

	sess, err := h.Sessions.Refresh(ctx, ps.User.ID)
	if err != nil {
		h.Log.WithError(err).Error("session refresh failed")
		writeError(w, http.StatusServiceUnavailable, "session unavailable")
		return
	}
	if err := sess.Require(role); err != nil {
		if serr := h.Provider.SignOut(ctx, ps.AccessToken); serr != nil {
			h.Log.WithError(serr).WithField("principal_id", ps.User.ID).Warn("provider sign-out failed")
		}
		_ = h.Sessions.Close(ctx, ps.User.ID)
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, callbackResp{
		AccessToken:  ps.AccessToken,
		RefreshToken: ps.RefreshToken,
		ExpiresIn:    ps.ExpiresIn,
		Profile:      sess.Profile,
	})
}

func (h *AuthHandler) signOut(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	if err := h.Provider.SignOut(ctx, auth.AccessToken(ctx)); err != nil {
		h.Log.WithError(err).Warn("provider sign-out failed")
	}
	if err := h.Sessions.Close(ctx, auth.PrincipalID(ctx)); err != nil {
		h.Log.WithError(err).Warn("session close failed")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	sess, err := session(ctx, h.Sessions)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "session unavailable")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
