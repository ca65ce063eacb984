package maintenance

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"tube-accounts/internal/httpx"
	"tube-accounts/internal/observability"
)

type RefreshTokenSweeper interface {
	ClearExpiredRefreshTokens(ctx context.Context, batchSize int) (int64, error)
}

type RateLimitSweeper interface {
	DeleteStale(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

type Options struct {
	CronSecret string
	// RateLimitRetention is how long an idle login window is kept.
	RateLimitRetention time.Duration
	BatchSize          int
}

type CleanupResult struct {
	ClearedRefreshTokens int64 `json:"clearedRefreshTokens"`
	DeletedRateLimits    int64 `json:"deletedRateLimits"`
}

// CleanupHandler is hit by a scheduler. RateLimits may be nil when login
// limits are not kept in the database.
type CleanupHandler struct {
	tokens     RefreshTokenSweeper
	rateLimits RateLimitSweeper
	logger     *observability.Logger
	opts       Options
	now        func() time.Time
}

func NewCleanupHandler(tokens RefreshTokenSweeper, rateLimits RateLimitSweeper, logger *observability.Logger, opts Options) *CleanupHandler {
	opts.CronSecret = strings.TrimSpace(opts.CronSecret)
	if opts.RateLimitRetention <= 0 {
		opts.RateLimitRetention = 24 * time.Hour
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	return &CleanupHandler{
		tokens:     tokens,
		rateLimits: rateLimits,
		logger:     logger,
		opts:       opts,
		now:        time.Now,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.opts.CronSecret == "" {
		httpx.WriteError(w, http.StatusNotFound, "not found")
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") ||
		subtle.ConstantTimeCompare([]byte(strings.TrimSpace(parts[1])), []byte(h.opts.CronSecret)) != 1 {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	result, err := h.run(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		h.logger.Error("auth_cleanup_failed", map[string]any{"error": err.Error()})
		httpx.WriteError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}

	h.logger.Info("auth_cleanup_completed", map[string]any{
		"cleared_refresh_tokens": result.ClearedRefreshTokens,
		"deleted_rate_limits":    result.DeletedRateLimits,
	})

	httpx.WriteSuccess(w, http.StatusOK, result, "cleanup completed")
}

func (h *CleanupHandler) run(ctx context.Context) (CleanupResult, error) {
	var result CleanupResult

	cleared, err := h.tokens.ClearExpiredRefreshTokens(ctx, h.opts.BatchSize)
	if err != nil {
		return result, err
	}
	result.ClearedRefreshTokens = cleared

	if h.rateLimits != nil {
		cutoff := h.now().UTC().Add(-h.opts.RateLimitRetention)
		deleted, err := h.rateLimits.DeleteStale(ctx, cutoff, h.opts.BatchSize)
		if err != nil {
			return result, err
		}
		result.DeletedRateLimits = deleted
	}

	return result, nil
}
