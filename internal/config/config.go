// Package config reads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"tube-accounts/internal/media"
	"tube-accounts/internal/password"
	"tube-accounts/internal/token"
)

type Config struct {
	Port          string `validate:"required,numeric"`
	AppEnv        string `validate:"required"`
	Release       string
	DatabaseURL   string `validate:"required"`
	SentryDSN     string
	RunMigrations bool

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	AccessTokenSecret  string        `validate:"required"`
	AccessTokenTTL     time.Duration `validate:"gt=0"`
	RefreshTokenSecret string        `validate:"required,nefield=AccessTokenSecret"`
	RefreshTokenTTL    time.Duration `validate:"gt=0"`

	PasswordHasher string `validate:"oneof=bcrypt argon2id"`
	BcryptCost     int    `validate:"min=4,max=31"`

	CookieSecure      bool
	TrustProxyHeaders bool

	MediaBackend  string `validate:"oneof=cloudinary s3"`
	CloudinaryURL string `validate:"required_if=MediaBackend cloudinary"`
	S3            media.S3Config
	UploadTempDir string

	RedisURL             string
	RateLimitBackend     string        `validate:"oneof=memory redis postgres"`
	LoginRateLimitMax    int           `validate:"gt=0"`
	LoginRateLimitWindow time.Duration `validate:"gt=0"`

	ChannelCacheSize int
	ChannelCacheTTL  time.Duration

	CronSecret         string
	CleanupBatchSize   int
	RateLimitRetention time.Duration
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load builds a Config from the environment. Only DATABASE_URL and the two
// token secrets have no default.
func Load() (Config, error) {
	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}
	accessSecret, err := mustEnv("ACCESS_TOKEN_SECRET")
	if err != nil {
		return Config{}, err
	}
	refreshSecret, err := mustEnv("REFRESH_TOKEN_SECRET")
	if err != nil {
		return Config{}, err
	}

	redisURL := os.Getenv("REDIS_URL")
	rateLimitBackend := "memory"
	if strings.TrimSpace(redisURL) != "" {
		rateLimitBackend = "redis"
	}

	cfg := Config{
		Port:          envOrDefault("PORT", "8000"),
		AppEnv:        envOrDefault("APP_ENV", "development"),
		Release:       os.Getenv("APP_RELEASE"),
		DatabaseURL:   databaseURL,
		SentryDSN:     os.Getenv("SENTRY_DSN"),
		RunMigrations: EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", false),

		DBMaxOpenConns:    envIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:    envIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		DBConnMaxIdleTime: envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),

		AccessTokenSecret:  accessSecret,
		AccessTokenTTL:     envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 15),
		RefreshTokenSecret: refreshSecret,
		RefreshTokenTTL:    envHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 240),

		PasswordHasher: strings.ToLower(envOrDefault("PASSWORD_HASHER", password.AlgorithmBcrypt)),
		BcryptCost:     envIntOrDefault("BCRYPT_COST", password.DefaultBcryptCost),

		CookieSecure:      EnvBoolOrDefault("COOKIE_SECURE", true),
		TrustProxyHeaders: EnvBoolOrDefault("TRUST_PROXY_HEADERS", false),

		MediaBackend:  strings.ToLower(envOrDefault("MEDIA_BACKEND", media.BackendCloudinary)),
		CloudinaryURL: os.Getenv("CLOUDINARY_URL"),
		S3: media.S3Config{
			Bucket:        os.Getenv("S3_BUCKET"),
			Region:        os.Getenv("S3_REGION"),
			Endpoint:      os.Getenv("S3_ENDPOINT"),
			AccessKey:     os.Getenv("S3_ACCESS_KEY"),
			SecretKey:     os.Getenv("S3_SECRET_KEY"),
			PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
			KeyPrefix:     os.Getenv("S3_KEY_PREFIX"),
		},
		UploadTempDir: os.Getenv("UPLOAD_TEMP_DIR"),

		RedisURL:             redisURL,
		RateLimitBackend:     strings.ToLower(envOrDefault("LOGIN_RATE_LIMIT_BACKEND", rateLimitBackend)),
		LoginRateLimitMax:    envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		LoginRateLimitWindow: envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),

		ChannelCacheSize: envIntOrDefault("CHANNEL_CACHE_SIZE", 1024),
		ChannelCacheTTL:  envSecondsOrZero("CHANNEL_CACHE_TTL_SECONDS", 30),

		CronSecret:         os.Getenv("CRON_SECRET"),
		CleanupBatchSize:   envIntOrDefault("AUTH_CLEANUP_BATCH_SIZE", 500),
		RateLimitRetention: envHoursOrDefault("LOGIN_RATE_LIMIT_RETENTION_HOURS", 24),
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.MediaBackend == media.BackendS3 && (cfg.S3.Bucket == "" || cfg.S3.Region == "") {
		return Config{}, errors.New("invalid config: S3_BUCKET and S3_REGION are required for the s3 media backend")
	}
	if cfg.RateLimitBackend == "redis" && strings.TrimSpace(cfg.RedisURL) == "" {
		return Config{}, errors.New("invalid config: REDIS_URL is required for the redis rate limit backend")
	}

	return cfg, nil
}

func (c Config) Token() token.Config {
	return token.Config{
		AccessSecret:  c.AccessTokenSecret,
		AccessTTL:     c.AccessTokenTTL,
		RefreshSecret: c.RefreshTokenSecret,
		RefreshTTL:    c.RefreshTokenTTL,
	}
}

func (c Config) Password() password.Options {
	return password.Options{Algorithm: c.PasswordHasher, BcryptCost: c.BcryptCost}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

// envSecondsOrZero is envSecondsOrDefault that also accepts an explicit 0.
func envSecondsOrZero(name string, fallback int) time.Duration {
	if strings.TrimSpace(os.Getenv(name)) == "0" {
		return 0
	}
	return envSecondsOrDefault(name, fallback)
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
