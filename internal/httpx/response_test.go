package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSuccessEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, http.StatusOK, map[string]string{"k": "v"}, "done")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(200), body["statusCode"])
	assert.Equal(t, "done", body["message"])
	assert.Equal(t, true, body["success"])
	assert.Equal(t, map[string]any{"k": "v"}, body["data"])
}

func TestWriteSuccessNilDataIsEmptyObject(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, http.StatusOK, nil, "logged out")
	assert.Contains(t, w.Body.String(), `"data":{}`)
}

func TestWriteErrorEnvelopeHasNoData(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusUnauthorized, "invalid user credentials")

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(401), body["statusCode"])
	assert.Equal(t, false, body["success"])
	assert.NotContains(t, body, "data")
	assert.NotContains(t, body, "errors")
}

type sampleRequest struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"fullName" validate:"required,max=5"`
}

func TestDecodeJSON(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@x.com","fullName":"A"}`))
		var req sampleRequest
		require.NoError(t, DecodeJSON(httptest.NewRecorder(), r, &req, false))
		assert.Equal(t, "a@x.com", req.Email)
	})

	t.Run("unknown field", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"role":"admin"}`))
		var req sampleRequest
		require.ErrorIs(t, DecodeJSON(httptest.NewRecorder(), r, &req, false), ErrInvalidBody)
	})

	t.Run("empty body", func(t *testing.T) {
		var req sampleRequest
		r := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
		require.ErrorIs(t, DecodeJSON(httptest.NewRecorder(), r, &req, false), ErrInvalidBody)

		r = httptest.NewRequest(http.MethodPost, "/", http.NoBody)
		require.NoError(t, DecodeJSON(httptest.NewRecorder(), r, &req, true))
	})
}

func TestFormatValidationError(t *testing.T) {
	err := Validate(sampleRequest{Email: "nope", FullName: "too long name"})
	require.Error(t, err)

	errs := FormatValidationError(err)
	assert.Equal(t, "invalid email format", errs["email"])
	assert.Equal(t, "must be at most 5 characters", errs["fullName"])
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name       string
		remoteAddr string
		forwarded  string
		trustProxy bool
		want       string
	}{
		{name: "peer port stripped", remoteAddr: "192.0.2.1:1234", want: "192.0.2.1"},
		{name: "ipv6 peer", remoteAddr: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "peer without port", remoteAddr: "192.0.2.1", want: "192.0.2.1"},
		{name: "forwarded header ignored by default", remoteAddr: "192.0.2.1:1234", forwarded: "10.0.0.1", want: "192.0.2.1"},
		{name: "trusted proxy uses first hop", remoteAddr: "192.0.2.1:1234", forwarded: "10.0.0.1, 10.0.0.2", trustProxy: true, want: "10.0.0.1"},
		{name: "trusted proxy with empty header", remoteAddr: "192.0.2.1:1234", trustProxy: true, want: "192.0.2.1"},
		{name: "no address", want: "unknown"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			assert.Equal(t, tc.want, ClientIP(r, tc.trustProxy))
		})
	}
}
