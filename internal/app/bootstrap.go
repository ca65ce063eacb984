package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"tube-accounts/internal/account"
	"tube-accounts/internal/auth"
	"tube-accounts/internal/channel"
	"tube-accounts/internal/config"
	"tube-accounts/internal/db"
	"tube-accounts/internal/maintenance"
	"tube-accounts/internal/media"
	"tube-accounts/internal/observability"
	"tube-accounts/internal/password"
	"tube-accounts/internal/token"
	"tube-accounts/internal/users"
)

type Options struct {
	LoadDotEnv bool
	// BehindProxy flips the TRUST_PROXY_HEADERS default to true for
	// deployments where a platform proxy always sets X-Forwarded-For.
	BehindProxy bool
}

type Runtime struct {
	Handler http.Handler
	Config  config.Config
	Logger  *observability.Logger
	Close   func() error
}

func Build(ctx context.Context, options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if options.BehindProxy {
		cfg.TrustProxyHeaders = config.EnvBoolOrDefault("TRUST_PROXY_HEADERS", true)
	}

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv, cfg.Release); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.RunMigrations {
		if err := db.RunMigrations(ctx, database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	hasher, err := password.New(cfg.Password())
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init password hasher: %w", err)
	}
	issuer, err := token.NewIssuer(cfg.Token())
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init token issuer: %w", err)
	}
	verifier, err := token.NewVerifier(cfg.Token())
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init token verifier: %w", err)
	}

	uploader, err := newUploader(ctx, cfg)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init %s uploader: %w", cfg.MediaBackend, err)
	}
	relay := media.NewRelay(uploader, media.RelayOptions{TempDir: cfg.UploadTempDir}, logger)

	limiter, limitSweeper, closeLimiter, err := newLoginLimiter(ctx, cfg, database, logger)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init login rate limiter: %w", err)
	}

	userRepo := users.NewRepository(database)
	authService := auth.NewService(userRepo, hasher, issuer, verifier, logger)
	accountService := account.NewService(userRepo, hasher, relay, logger)
	channelService := channel.NewService(userRepo, channel.NewRepository(database), channel.CacheOptions{
		Size: cfg.ChannelCacheSize,
		TTL:  cfg.ChannelCacheTTL,
	}, logger)

	handler := NewRouter(Handlers{
		Logger:            logger,
		DB:                database,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		Auth:              auth.NewHandler(authService, auth.CookieConfig{Secure: cfg.CookieSecure}),
		Authenticator:     authService,
		LoginLimiter:      limiter,
		Account:           account.NewHandler(accountService),
		Channel:           channel.NewHandler(channelService),
		Cleanup: maintenance.NewCleanupHandler(userRepo, limitSweeper, logger, maintenance.Options{
			CronSecret:         cfg.CronSecret,
			RateLimitRetention: cfg.RateLimitRetention,
			BatchSize:          cfg.CleanupBatchSize,
		}),
	})

	logger.Info("app_initialized", map[string]any{
		"env":           cfg.AppEnv,
		"media_backend": uploader.Name(),
		"rate_limit":    cfg.RateLimitBackend,
		"trust_proxy":   cfg.TrustProxyHeaders,
	})

	return &Runtime{
		Handler: handler,
		Config:  cfg,
		Logger:  logger,
		Close: func() error {
			observability.FlushSentry()
			if err := closeLimiter(); err != nil {
				logger.Warn("close_rate_limiter_failed", map[string]any{"error": err.Error()})
			}
			return database.Close()
		},
	}, nil
}

func newUploader(ctx context.Context, cfg config.Config) (media.Uploader, error) {
	switch cfg.MediaBackend {
	case media.BackendS3:
		s3Uploader, err := media.NewS3(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return s3Uploader, nil
	default:
		cloudinary, err := media.NewCloudinary(cfg.CloudinaryURL)
		if err != nil {
			return nil, err
		}
		return cloudinary, nil
	}
}

// newLoginLimiter also returns the sweeper for limiter state kept in the
// database, nil for the other backends.
func newLoginLimiter(ctx context.Context, cfg config.Config, database *sql.DB, logger *observability.Logger) (auth.RateLimiter, maintenance.RateLimitSweeper, func() error, error) {
	noop := func() error { return nil }

	switch cfg.RateLimitBackend {
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis_unreachable", map[string]any{"error": err.Error()})
		}

		return auth.NewRedisRateLimiter(client, cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow), nil, client.Close, nil
	case "postgres":
		limiter := auth.NewPostgresRateLimiter(database, cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow)
		return limiter, limiter, noop, nil
	default:
		return auth.NewMemoryRateLimiter(cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow), nil, noop, nil
	}
}
