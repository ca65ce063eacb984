package app

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tube-accounts/internal/account"
	"tube-accounts/internal/auth"
	"tube-accounts/internal/channel"
	"tube-accounts/internal/httpx"
	"tube-accounts/internal/maintenance"
	"tube-accounts/internal/observability"
)

type Handlers struct {
	Logger *observability.Logger
	DB     *sql.DB
	// TrustProxyHeaders keys the login limiter on X-Forwarded-For.
	TrustProxyHeaders bool
	Auth              *auth.Handler
	Authenticator     auth.Authenticator
	LoginLimiter      auth.RateLimiter
	Account           *account.Handler
	Channel           *channel.Handler
	Cleanup           *maintenance.CleanupHandler
}

func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler { return observability.RecoverMiddleware(h.Logger, next) })
	r.Use(func(next http.Handler) http.Handler { return observability.RequestLoggingMiddleware(h.Logger, next) })
	r.Use(observability.MetricsMiddleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", healthHandler(h.DB))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/internal/maintenance/cleanup", h.Cleanup.Handle)
	r.Post("/internal/maintenance/cleanup", h.Cleanup.Handle)

	requireUser := auth.RequireUser(h.Authenticator)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Post("/register", h.Account.Register)
			r.With(auth.LoginRateLimit(h.LoginLimiter, h.Logger, h.TrustProxyHeaders)).Post("/login", h.Auth.Login)
			r.Post("/refresh-token", h.Auth.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(requireUser)
				r.Post("/logout", h.Auth.Logout)
				r.Post("/change-password", h.Auth.ChangePassword)
				r.Get("/current-user", h.Account.CurrentUser)
				r.Patch("/update-account", h.Account.UpdateAccountDetails)
				r.Patch("/avatar", h.Account.UpdateAvatar)
				r.Patch("/cover-image", h.Account.UpdateCoverImage)
				r.Get("/c/{username}", h.Channel.Profile)
			})
		})

		r.With(requireUser).Post("/subscriptions/c/{channelId}", h.Channel.ToggleSubscription)
	})

	return r
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		httpx.WriteJSON(w, status, body)
	}
}
