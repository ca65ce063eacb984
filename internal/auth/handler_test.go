package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var body envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func cookiesByName(w *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, c := range w.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestLoginHandlerSetsTokenCookies(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", "alice@x.com", "Secret1")
	handler := NewHandler(env.service, CookieConfig{Secure: true})

	w := httptest.NewRecorder()
	handler.Login(w, jsonRequest(http.MethodPost, "/api/v1/users/login", `{"username":"alice","email":"","password":"Secret1"}`))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeEnvelope(t, w)
	assert.True(t, body.Success)
	assert.Equal(t, http.StatusOK, body.StatusCode)

	var data struct {
		User struct {
			ID       string `json:"_id"`
			Username string `json:"username"`
		} `json:"user"`
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &data))
	assert.Equal(t, alice.ID, data.User.ID)
	assert.NotContains(t, string(body.Data), "password")

	cookies := cookiesByName(w)
	require.Contains(t, cookies, AccessTokenCookie)
	require.Contains(t, cookies, RefreshTokenCookie)
	for _, c := range cookies {
		assert.True(t, c.HttpOnly)
		assert.True(t, c.Secure)
		assert.Positive(t, c.MaxAge)
	}
	assert.Equal(t, data.AccessToken, cookies[AccessTokenCookie].Value)
	assert.Equal(t, data.RefreshToken, cookies[RefreshTokenCookie].Value)

	claims, err := env.verifier.VerifyAccess(cookies[AccessTokenCookie].Value)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
}

func TestLoginHandlerFailures(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "alice@x.com", "Secret1")
	handler := NewHandler(env.service, CookieConfig{Secure: true})

	cases := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"wrong password", `{"username":"alice","password":"nope"}`, http.StatusUnauthorized, "invalid user credentials"},
		{"no identifier", `{"password":"Secret1"}`, http.StatusBadRequest, "username or email is required"},
		{"no password", `{"username":"alice"}`, http.StatusBadRequest, "password is required"},
		{"unknown user", `{"username":"bob","password":"Secret1"}`, http.StatusNotFound, "user does not exist"},
		{"unknown field", `{"username":"alice","password":"Secret1","admin":true}`, http.StatusBadRequest, "invalid json body"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.Login(w, jsonRequest(http.MethodPost, "/api/v1/users/login", tc.body))

			assert.Equal(t, tc.status, w.Code)
			body := decodeEnvelope(t, w)
			assert.False(t, body.Success)
			assert.Equal(t, tc.status, body.StatusCode)
			assert.Equal(t, tc.message, body.Message)
			assert.Nil(t, body.Data)
			assert.Empty(t, w.Result().Cookies())
		})
	}
}

func TestRefreshHandlerReadsCookieOrBody(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "alice@x.com", "Secret1")
	handler := NewHandler(env.service, CookieConfig{})

	w := httptest.NewRecorder()
	handler.Login(w, jsonRequest(http.MethodPost, "/api/v1/users/login", `{"username":"alice","password":"Secret1"}`))
	require.Equal(t, http.StatusOK, w.Code)
	refresh := cookiesByName(w)[RefreshTokenCookie]

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", nil)
	req.AddCookie(refresh)
	handler.Refresh(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	rotated := cookiesByName(w)[RefreshTokenCookie]
	require.NotNil(t, rotated)
	assert.NotEqual(t, refresh.Value, rotated.Value)

	w = httptest.NewRecorder()
	handler.Refresh(w, jsonRequest(http.MethodPost, "/api/v1/users/refresh-token", `{"refreshToken":"`+rotated.Value+`"}`))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.Refresh(w, jsonRequest(http.MethodPost, "/api/v1/users/refresh-token", `{"refreshToken":"`+rotated.Value+`"}`))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "refresh token is expired or used", decodeEnvelope(t, w).Message)
}

func TestRefreshHandlerRejectsAccessToken(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "alice@x.com", "Secret1")
	handler := NewHandler(env.service, CookieConfig{})

	w := httptest.NewRecorder()
	handler.Login(w, jsonRequest(http.MethodPost, "/api/v1/users/login", `{"username":"alice","password":"Secret1"}`))
	access := cookiesByName(w)[AccessTokenCookie]

	w = httptest.NewRecorder()
	handler.Refresh(w, jsonRequest(http.MethodPost, "/api/v1/users/refresh-token", `{"refreshToken":"`+access.Value+`"}`))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid refresh token", decodeEnvelope(t, w).Message)
}

func TestRefreshHandlerWithoutToken(t *testing.T) {
	env := newTestEnv(t)
	handler := NewHandler(env.service, CookieConfig{})

	w := httptest.NewRecorder()
	handler.Refresh(w, httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized request", decodeEnvelope(t, w).Message)
}

func TestLogoutHandlerClearsCookies(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", "alice@x.com", "Secret1")
	handler := NewHandler(env.service, CookieConfig{Secure: true})
	protected := RequireUser(env.service)(http.HandlerFunc(handler.Logout))

	w := httptest.NewRecorder()
	handler.Login(w, jsonRequest(http.MethodPost, "/api/v1/users/login", `{"username":"alice","password":"Secret1"}`))
	access := cookiesByName(w)[AccessTokenCookie]

	for i := 0; i < 2; i++ {
		w = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/logout", nil)
		req.AddCookie(access)
		protected.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		cookies := cookiesByName(w)
		require.Contains(t, cookies, AccessTokenCookie)
		require.Contains(t, cookies, RefreshTokenCookie)
		for _, c := range cookies {
			assert.Empty(t, c.Value)
			assert.Negative(t, c.MaxAge)
		}
		assert.Nil(t, env.store.get(alice.ID).RefreshTokenHash)
	}
}

func TestChangePasswordHandler(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", "alice@x.com", "Secret1")
	handler := NewHandler(env.service, CookieConfig{})
	protected := RequireUser(env.service)(http.HandlerFunc(handler.ChangePassword))

	login, err := env.service.Login(t.Context(), LoginInput{Username: "alice", Password: "Secret1"})
	require.NoError(t, err)

	send := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := jsonRequest(http.MethodPost, "/api/v1/users/change-password", body)
		req.Header.Set("Authorization", "Bearer "+login.AccessToken)
		protected.ServeHTTP(w, req)
		return w
	}

	w := send(`{"oldPassword":"wrong","newPassword":"Secret2"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid old password", decodeEnvelope(t, w).Message)
	assert.True(t, env.hasher.Verify("Secret1", env.store.get(alice.ID).PasswordHash))

	w = send(`{"oldPassword":"Secret1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"newPassword":"this field is required"`)

	w = send(`{"oldPassword":"Secret1","newPassword":"` + strings.Repeat("a", 73) + `"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"newPassword"`)

	// 40 two-byte runes pass the tag but exceed the byte limit.
	w = send(`{"oldPassword":"Secret1","newPassword":"` + strings.Repeat("é", 40) + `"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "password is too long", decodeEnvelope(t, w).Message)
	assert.True(t, env.hasher.Verify("Secret1", env.store.get(alice.ID).PasswordHash))

	w = send(`{"oldPassword":"Secret1","newPassword":"Secret2"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.hasher.Verify("Secret2", env.store.get(alice.ID).PasswordHash))
}

func TestRequireUser(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", "alice@x.com", "Secret1")

	login, err := env.service.Login(t.Context(), LoginInput{Username: "alice", Password: "Secret1"})
	require.NoError(t, err)

	var seen string
	protected := RequireUser(env.service)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profile, ok := UserFromContext(r.Context())
		require.True(t, ok)
		seen = profile.ID
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name    string
		prepare func(r *http.Request)
		status  int
		message string
	}{
		{"no token", func(r *http.Request) {}, http.StatusUnauthorized, "unauthorized request"},
		{"garbage bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized, "invalid access token"},
		{"refresh token as bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+login.RefreshToken) }, http.StatusUnauthorized, "invalid access token"},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+login.AccessToken) }, http.StatusNoContent, ""},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: login.AccessToken}) }, http.StatusNoContent, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/api/v1/users/current-user", nil)
			tc.prepare(req)
			w := httptest.NewRecorder()
			protected.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			if tc.message != "" {
				assert.Equal(t, tc.message, decodeEnvelope(t, w).Message)
				assert.Empty(t, seen)
				return
			}
			assert.Equal(t, alice.ID, seen)
		})
	}
}
