package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewAccessPolicyHolder),
)

const (
	BackendREST     = "rest"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

const (
	EmailProviderResend = "resend"
	EmailProviderSMTP   = "smtp"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	Datastore DatastoreConfig
	App       AppConfig
	Email     EmailConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig

	CORSAllowedOrigins []string
	AccessPolicyPath   string
}

// DatastoreConfig selects and configures the external data store backend.
type DatastoreConfig struct {
	Backend   string
	URL       string
	AnonKey   string
	JWTSecret string
	Timeout   time.Duration

	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
}

// AppConfig describes where the browser application lives.
type AppConfig struct {
	Origin         string
	AcceptPath     string
	PostAcceptPath string
}

type EmailConfig struct {
	Provider     string
	APIKey       string
	APIURL       string
	From         string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	Timeout      time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	AcceptPerMinute int
	InvitePerMinute int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "orgaccess"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		Datastore: DatastoreConfig{
			Backend:           normalizeBackend(getenv("DATASTORE_BACKEND", BackendREST)),
			URL:               strings.TrimRight(strings.TrimSpace(getenv("SUPABASE_URL", "")), "/"),
			AnonKey:           strings.TrimSpace(getenv("SUPABASE_ANON_KEY", "")),
			JWTSecret:         strings.TrimSpace(getenv("SUPABASE_JWT_SECRET", "")),
			Timeout:           getenvDuration("DATASTORE_TIMEOUT", 10*time.Second),
			DBHost:            getenv("DATABASE_HOST", "localhost"),
			DBPort:            getenv("DATABASE_PORT", "5432"),
			DBName:            getenv("DATABASE_NAME", "postgres"),
			DBUser:            getenv("DATABASE_USER", "postgres"),
			DBPassword:        getenv("DATABASE_PASSWORD", ""),
			DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
			DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
			DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
			DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		},
		App: AppConfig{
			Origin:         strings.TrimRight(strings.TrimSpace(getenv("APP_ORIGIN", "")), "/"),
			AcceptPath:     getenv("ACCEPT_INVITE_PATH", "/accept-invite"),
			PostAcceptPath: getenv("POST_ACCEPT_PATH", "/dashboard"),
		},
		Email: EmailConfig{
			Provider:     strings.ToLower(strings.TrimSpace(getenv("EMAIL_PROVIDER", EmailProviderResend))),
			APIKey:       strings.TrimSpace(getenv("RESEND_API_KEY", "")),
			APIURL:       getenv("EMAIL_API_URL", "https://api.resend.com/emails"),
			From:         strings.TrimSpace(getenv("EMAIL_FROM", "")),
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			Timeout:      getenvDuration("EMAIL_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			AcceptPerMinute: getenvInt("RATE_LIMIT_ACCEPT_PER_MIN", 20),
			InvitePerMinute: getenvInt("RATE_LIMIT_INVITE_PER_MIN", 60),
		},
		CORSAllowedOrigins: parseList(getenv("CORS_ALLOWED_ORIGINS", "")),
		AccessPolicyPath:   getenv("ACCESS_POLICY_PATH", ""),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func normalizeBackend(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case BackendPostgres, "pg":
		return BackendPostgres
	case BackendMemory, "mem":
		return BackendMemory
	default:
		return BackendREST
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimRight(strings.TrimSpace(p), "/")
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
