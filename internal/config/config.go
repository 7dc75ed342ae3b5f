// Package config reads the process environment. Commands call godotenv.Load
// first so a local .env file feeds the same variables.
package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	pipeerrors "github.com/ducminhle1904/signal-backtest/internal/errors"
	"github.com/ducminhle1904/signal-backtest/internal/realtime"
	"github.com/ducminhle1904/signal-backtest/internal/storage"
)

type Config struct {
	Environment string

	Exchange struct {
		APIKey  string
		Secret  string
		Testnet bool
	}

	Database struct {
		URL  string
		Pool storage.PoolConfig
	}

	Logging struct {
		Dir     string
		Console bool
	}

	Monitoring struct {
		MetricsAddr string
	}

	Realtime struct {
		StreamURL string
	}

	// RandomTest turns off trade recording so funds stay at their initial value.
	RandomTest bool
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{Environment: getEnv("ENV", "development")}

	cfg.Exchange.APIKey = getEnv("BYBIT_API_KEY", "")
	cfg.Exchange.Secret = getEnv("BYBIT_API_SECRET", "")
	cfg.Exchange.Testnet = getEnvBool("BYBIT_TESTNET", false)

	pool := storage.DefaultPoolConfig()
	cfg.Database.URL = getEnv("DATABASE_URL", "")
	cfg.Database.Pool = storage.PoolConfig{
		MaxConns:          int32(getEnvInt("DB_MAX_CONNS", int(pool.MaxConns))),
		MinConns:          int32(getEnvInt("DB_MIN_CONNS", int(pool.MinConns))),
		MaxConnLifetime:   getEnvDuration("DB_MAX_CONN_LIFETIME", pool.MaxConnLifetime),
		MaxConnIdleTime:   getEnvDuration("DB_MAX_CONN_IDLE_TIME", pool.MaxConnIdleTime),
		HealthCheckPeriod: getEnvDuration("DB_HEALTH_CHECK_PERIOD", pool.HealthCheckPeriod),
	}

	cfg.Logging.Dir = getEnv("LOG_DIR", "logs")
	cfg.Logging.Console = getEnvBool("LOG_CONSOLE", true)

	cfg.Monitoring.MetricsAddr = getEnv("METRICS_ADDR", ":9090")

	stream := realtime.BybitLinearStreamURL
	if cfg.Exchange.Testnet {
		stream = realtime.BybitLinearTestnetStreamURL
	}
	cfg.Realtime.StreamURL = getEnv("REALTIME_WS_URL", stream)

	cfg.RandomTest = getEnvBool("ENABLE_RANDOM_TEST", false)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values Load could not coerce.
func (c *Config) Validate() error {
	if (c.Exchange.APIKey == "") != (c.Exchange.Secret == "") {
		return pipeerrors.NewConfigurationError("config", "Validate", "BYBIT_API_KEY and BYBIT_API_SECRET must be set together")
	}
	if c.Database.URL != "" {
		u, err := url.Parse(c.Database.URL)
		if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			return pipeerrors.NewConfigurationError("config", "Validate", "DATABASE_URL must be a postgres:// URL")
		}
	}
	if c.Database.Pool.MaxConns < 1 {
		return pipeerrors.NewConfigurationError("config", "Validate", "DB_MAX_CONNS must be positive").
			WithContext("value", c.Database.Pool.MaxConns)
	}
	if c.Database.Pool.MinConns > c.Database.Pool.MaxConns {
		return pipeerrors.NewConfigurationError("config", "Validate", "DB_MIN_CONNS exceeds DB_MAX_CONNS")
	}
	if !strings.HasPrefix(c.Realtime.StreamURL, "ws://") && !strings.HasPrefix(c.Realtime.StreamURL, "wss://") {
		return pipeerrors.NewConfigurationError("config", "Validate", "REALTIME_WS_URL must be a websocket URL").
			WithContext("value", c.Realtime.StreamURL)
	}
	return nil
}

// HasCredentials reports whether private exchange endpoints can be called.
func (c *Config) HasCredentials() bool {
	return c.Exchange.APIKey != "" && c.Exchange.Secret != ""
}

// PersistenceEnabled reports whether results should be written to Postgres.
func (c *Config) PersistenceEnabled() bool {
	return c.Database.URL != ""
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
