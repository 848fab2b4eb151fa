package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App      AppConfig
	Server   ServerConfig
	DB       DBConfig
	Redis    RedisConfig
	NATS     NATSConfig
	JWT      JWTConfig
	Quota    QuotaConfig
	Throttle ThrottleConfig
	CORS     CORSConfig
	Text     TextServiceConfig
	Log      LogConfig
}

type AppConfig struct {
	Env string
}

// Development reports whether internal error detail may be exposed to callers.
func (c AppConfig) Development() bool {
	return c.Env == "development"
}

type ServerConfig struct {
	Host string
	Port int
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable behind a proxy that overwrites those headers.
	TrustProxy bool
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
}

// QuotaConfig holds the free-tier ceilings. Monthly ceilings are per action
// type; the daily ceiling spans every action type combined.
type QuotaConfig struct {
	SummaryMonthly     int
	TranslationMonthly int
	Daily              int
	TimeZone           string
}

type ThrottleConfig struct {
	Backend  string
	Points   int
	Duration time.Duration
	MaxKeys  int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type TextServiceConfig struct {
	URL     string
	Timeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Env: k.String("app.env"),
		},
		Server: ServerConfig{
			Host:       k.String("server.host"),
			Port:       k.Int("server.port"),
			TrustProxy: k.Bool("server.trust.proxy"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		JWT: JWTConfig{
			Secret: k.String("jwt.secret"),
		},
		Quota: QuotaConfig{
			SummaryMonthly:     k.Int("quota.summary.monthly"),
			TranslationMonthly: k.Int("quota.translation.monthly"),
			Daily:              k.Int("quota.daily"),
			TimeZone:           k.String("quota.timezone"),
		},
		Throttle: ThrottleConfig{
			Backend: k.String("throttle.backend"),
			Points:  k.Int("throttle.points"),
			MaxKeys: k.Int("throttle.max.keys"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(k.String("cors.allowed.origins")),
		},
		Text: TextServiceConfig{
			URL: k.String("text.service.url"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.App.Env == "" {
		cfg.App.Env = "production"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "textgate"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "textgate"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Quota.SummaryMonthly == 0 {
		cfg.Quota.SummaryMonthly = 10
	}
	if cfg.Quota.TranslationMonthly == 0 {
		cfg.Quota.TranslationMonthly = 15
	}
	if cfg.Quota.Daily == 0 {
		cfg.Quota.Daily = 50
	}
	if cfg.Quota.TimeZone == "" {
		cfg.Quota.TimeZone = "Local"
	}
	if cfg.Throttle.Backend == "" {
		cfg.Throttle.Backend = "memory"
	}
	if cfg.Throttle.Points == 0 {
		cfg.Throttle.Points = 100
	}
	if cfg.Throttle.MaxKeys == 0 {
		cfg.Throttle.MaxKeys = 100_000
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	cfg.JWT.Expiry, err = parseDuration(k, "jwt.expiry", "168h")
	if err != nil {
		return nil, err
	}
	cfg.Throttle.Duration, err = parseDuration(k, "throttle.duration", "60s")
	if err != nil {
		return nil, err
	}
	cfg.Text.Timeout, err = parseDuration(k, "text.service.timeout", "30s")
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseDuration(k *koanf.Koanf, key, fallback string) (time.Duration, error) {
	s := k.String(key)
	if s == "" {
		s = fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
