package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-rescue-bags/internal/auth"
	"github.com/ariefcatur/go-rescue-bags/internal/onboarding"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type Onboarder interface {
	Onboard(ctx context.Context, r onboarding.Request) error
	Apply(ctx context.Context, a onboarding.Application) (string, error)
	Verify(ctx context.Context, token string) (onboarding.VerifyStatus, error)
}

type OnboardingHandler struct {
	Service Onboarder
	Log     logrus.FieldLogger
}

func (h *OnboardingHandler) RegisterPublic(r chi.Router) {
	r.Post("/partner-applications", h.apply)
	r.Get("/verify", h.verify)
}

func (h *OnboardingHandler) Register(r chi.Router) {
	r.Post("/onboard", h.onboard)
}

func (h *OnboardingHandler) onboard(w http.ResponseWriter, r *http.Request) {
	var req onboarding.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.UserID != auth.PrincipalID(r.Context()) {
		writeError(w, http.StatusForbidden, "userId does not match the signed-in user")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	err := h.Service.Onboard(ctx, req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	case errors.Is(err, onboarding.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, onboarding.ErrAlreadyOnboarded):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.Log.WithError(err).WithField("principal_id", req.UserID).Error("onboarding failed")
		writeError(w, http.StatusInternalServerError, "onboarding failed")
	}
}

func (h *OnboardingHandler) apply(w http.ResponseWriter, r *http.Request) {
	var req onboarding.Application
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	token, err := h.Service.Apply(ctx, req)
	if errors.Is(err, onboarding.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.Log.WithError(err).Error("partner application failed")
		writeError(w, http.StatusInternalServerError, "application failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"token": token})
}

func (h *OnboardingHandler) verify(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), writeTimeout)
	defer cancel()

	st, err := h.Service.Verify(ctx, r.URL.Query().Get("token"))
	if errors.Is(err, onboarding.ErrTokenNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.Log.WithError(err).Error("verification failed")
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(st)})
}
