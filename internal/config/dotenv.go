package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// Summary item scopes.
const (
	ItemScopeAll    = "all"
	ItemScopeActive = "active"
)

type Config struct {
	Port                     string
	Env                      string
	DatabaseURL              string
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeSeconds int
	DBConnMaxIdleTimeSeconds int
	JWTSecret                string
	JWTIssuer                string
	JWTTTLHours              int
	MediaRoot                string
	MediaURL                 string
	MaxImageBytes            int64
	SummaryItemScope         string
	RedisURL                 string
	SummaryCacheTTLSeconds   int
	CORSAllowedOrigins       []string
	StagingSweepSchedule     string
	StagingMaxAgeHours       int
}

func Default() Config {
	return Config{
		Port:                     "8080",
		Env:                      "production",
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           10,
		DBConnMaxLifetimeSeconds: 300,
		DBConnMaxIdleTimeSeconds: 60,
		JWTIssuer:                "gamification",
		JWTTTLHours:              72,
		MediaRoot:                "media",
		MediaURL:                 "/media/",
		MaxImageBytes:            5 * 1024 * 1024,
		SummaryItemScope:         ItemScopeAll,
		SummaryCacheTTLSeconds:   30,
		StagingSweepSchedule:     "@hourly",
		StagingMaxAgeHours:       24,
	}
}

func Load() Config {
	cfg := Default()
	if raw := os.Getenv("PORT"); raw != "" {
		cfg.Port = raw
	}
	if raw := os.Getenv("APP_ENV"); raw != "" {
		cfg.Env = raw
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if raw := os.Getenv("DB_MAX_OPEN_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxOpenConns = value
		}
	}
	if raw := os.Getenv("DB_MAX_IDLE_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxIdleConns = value
		}
	}
	if raw := os.Getenv("DB_CONN_MAX_LIFETIME_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBConnMaxLifetimeSeconds = value
		}
	}
	if raw := os.Getenv("DB_CONN_MAX_IDLE_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBConnMaxIdleTimeSeconds = value
		}
	}
	if raw := os.Getenv("JWT_SECRET"); raw != "" {
		cfg.JWTSecret = raw
	}
	if raw := os.Getenv("JWT_ISSUER"); raw != "" {
		cfg.JWTIssuer = raw
	}
	if raw := os.Getenv("JWT_TTL_HOURS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.JWTTTLHours = value
		}
	}
	if raw := os.Getenv("MEDIA_ROOT"); raw != "" {
		cfg.MediaRoot = raw
	}
	if raw := os.Getenv("MEDIA_URL"); raw != "" {
		cfg.MediaURL = raw
	}
	if raw := os.Getenv("MAX_IMAGE_BYTES"); raw != "" {
		if value, err := strconv.ParseInt(raw, 10, 64); err == nil && value > 0 {
			cfg.MaxImageBytes = value
		}
	}
	if raw := strings.ToLower(strings.TrimSpace(os.Getenv("SUMMARY_ITEM_SCOPE"))); raw != "" {
		if raw == ItemScopeAll || raw == ItemScopeActive {
			cfg.SummaryItemScope = raw
		}
	}
	cfg.RedisURL = os.Getenv("REDIS_URL")
	if raw := os.Getenv("SUMMARY_CACHE_TTL_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value >= 0 {
			cfg.SummaryCacheTTLSeconds = value
		}
	}
	if raw := os.Getenv("CORS_ALLOWED_ORIGINS"); raw != "" {
		cfg.CORSAllowedOrigins = splitList(raw)
	}
	if raw, ok := os.LookupEnv("STAGING_SWEEP_SCHEDULE"); ok {
		cfg.StagingSweepSchedule = strings.TrimSpace(raw)
	}
	if raw := os.Getenv("STAGING_MAX_AGE_HOURS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.StagingMaxAgeHours = value
		}
	}
	return cfg
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "dev"
}

func (c Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLHours) * time.Hour
}

func (c Config) SummaryCacheTTL() time.Duration {
	return time.Duration(c.SummaryCacheTTLSeconds) * time.Second
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
