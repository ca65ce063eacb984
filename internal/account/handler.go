package account

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/getsentry/sentry-go"

	"tube-accounts/internal/auth"
	"tube-accounts/internal/httpx"
	"tube-accounts/internal/password"
	"tube-accounts/internal/users"
)

const (
	maxMultipartBytes  = 25 << 20
	maxMultipartMemory = 10 << 20
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type updateAccountRequest struct {
	FullName string `json:"fullName" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email,max=254"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}

	profile, err := h.service.Register(r.Context(), RegisterInput{
		FullName:   r.FormValue("fullName"),
		Email:      r.FormValue("email"),
		Username:   r.FormValue("username"),
		Password:   r.FormValue("password"),
		Avatar:     formFile(r, "avatar"),
		CoverImage: formFile(r, "coverImage"),
	})
	if err != nil {
		writeServiceError(w, err, "failed to register user")
		return
	}

	httpx.WriteSuccess(w, http.StatusCreated, profile, "user registered successfully")
}

func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	profile, ok := auth.UserFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, auth.ErrUnauthenticated.Error())
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, profile, "current user fetched successfully")
}

func (h *Handler) UpdateAccountDetails(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.UserFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, auth.ErrUnauthenticated.Error())
		return
	}

	var body updateAccountRequest
	if err := httpx.DecodeJSON(w, r, &body, false); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := httpx.Validate(body); err != nil {
		httpx.WriteValidationError(w, err)
		return
	}

	profile, err := h.service.UpdateAccountDetails(r.Context(), caller.ID, body.FullName, body.Email)
	if err != nil {
		writeServiceError(w, err, "failed to update account details")
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, profile, "account details updated successfully")
}

func (h *Handler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "avatar", h.service.UpdateAvatar, "avatar updated successfully")
}

func (h *Handler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "coverImage", h.service.UpdateCoverImage, "cover image updated successfully")
}

type imageUpdate func(ctx context.Context, userID string, header *multipart.FileHeader) (users.Profile, error)

func (h *Handler) updateImage(w http.ResponseWriter, r *http.Request, field string, update imageUpdate, message string) {
	caller, ok := auth.UserFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, auth.ErrUnauthenticated.Error())
		return
	}
	if !parseMultipart(w, r) {
		return
	}

	profile, err := update(r.Context(), caller.ID, formFile(r, field))
	if err != nil {
		writeServiceError(w, err, "failed to update "+field)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, profile, message)
}

func parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBytes)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid multipart form")
		return false
	}
	return true
}

func formFile(r *http.Request, field string) *multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return nil
	}
	return files[0]
}

func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrMissingFields),
		errors.Is(err, ErrAvatarRequired),
		errors.Is(err, ErrCoverRequired),
		errors.Is(err, ErrAvatarUpload),
		errors.Is(err, ErrCoverUpload),
		errors.Is(err, password.ErrTooLong):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidAccount):
		httpx.WriteError(w, http.StatusBadRequest, ErrInvalidAccount.Error())
	case errors.Is(err, ErrUserExists):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrUserNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	default:
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, fallback)
	}
}
