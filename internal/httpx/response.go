// Package httpx holds the response envelopes and request decoding shared by
// every HTTP handler.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

const MaxJSONBodyBytes = 1 << 20

// Response is the envelope for every successful call.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

// ErrorResponse is the envelope for every failed call. It never carries data.
type ErrorResponse struct {
	StatusCode int               `json:"statusCode"`
	Message    string            `json:"message"`
	Success    bool              `json:"success"`
	Errors     map[string]string `json:"errors,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteSuccess(w http.ResponseWriter, status int, data any, message string) {
	if data == nil {
		data = struct{}{}
	}
	WriteJSON(w, status, Response{StatusCode: status, Data: data, Message: message, Success: true})
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{StatusCode: status, Message: message})
}

func WriteValidationError(w http.ResponseWriter, err error) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{
		StatusCode: http.StatusBadRequest,
		Message:    "invalid request",
		Errors:     FormatValidationError(err),
	})
}

var ErrInvalidBody = errors.New("invalid json body")

// DecodeJSON reads a size-limited JSON body and rejects unknown fields. An
// empty body decodes to the zero value when allowEmpty is set.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate runs struct tag validation on a decoded request.
func Validate(request any) error {
	return validate.Struct(request)
}

// FormatValidationError turns validator errors into a field → message map
// without leaking Go struct names.
func FormatValidationError(err error) map[string]string {
	errs := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errs["error"] = "invalid request format"
		return errs
	}

	for _, e := range validationErrors {
		field := lowerFirst(e.Field())
		switch e.Tag() {
		case "required":
			errs[field] = "this field is required"
		case "email":
			errs[field] = "invalid email format"
		case "max":
			errs[field] = fmt.Sprintf("must be at most %s characters", e.Param())
		case "min":
			errs[field] = fmt.Sprintf("must be at least %s characters", e.Param())
		default:
			errs[field] = "invalid value"
		}
	}
	return errs
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// ClientIP returns the host part of the peer address. With trustProxy set the
// first X-Forwarded-For hop wins instead; only enable it behind a proxy that
// overwrites that header.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		xForwardedFor := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
		if xForwardedFor != "" {
			if ip := hostOnly(strings.Split(xForwardedFor, ",")[0]); ip != "" {
				return ip
			}
		}
	}

	if ip := hostOnly(r.RemoteAddr); ip != "" {
		return ip
	}

	return "unknown"
}

func hostOnly(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
