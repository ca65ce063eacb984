package channel

import (
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"

	"tube-accounts/internal/auth"
	"tube-accounts/internal/httpx"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type toggleResponse struct {
	Subscribed bool `json:"subscribed"`
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	viewer, _ := auth.UserFromContext(r.Context())

	profile, err := h.service.Profile(r.Context(), chi.URLParam(r, "username"), viewer.ID)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingUsername):
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrChannelNotFound):
			httpx.WriteError(w, http.StatusNotFound, err.Error())
		default:
			sentry.CaptureException(err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to fetch channel")
		}
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, profile, "user channel fetched successfully")
}

func (h *Handler) ToggleSubscription(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.UserFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, auth.ErrUnauthenticated.Error())
		return
	}

	subscribed, err := h.service.ToggleSubscription(r.Context(), caller.ID, chi.URLParam(r, "channelId"))
	if err != nil {
		switch {
		case errors.Is(err, ErrSelfSubscription):
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrChannelNotFound):
			httpx.WriteError(w, http.StatusNotFound, err.Error())
		default:
			sentry.CaptureException(err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to toggle subscription")
		}
		return
	}

	message := "unsubscribed successfully"
	if subscribed {
		message = "subscribed successfully"
	}
	httpx.WriteSuccess(w, http.StatusOK, toggleResponse{Subscribed: subscribed}, message)
}
