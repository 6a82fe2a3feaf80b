package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite"` // sqlite | pgx
	DBDSN    string `envconfig:"DB_DSN" default:"popjoy.db"`
	LogFile  string `envconfig:"LOG_FILE" default:"./popjoy.log"`
	SeedDemo bool   `envconfig:"SEED_DEMO" default:"true"`

	AllocationMaxRetries int           `envconfig:"ALLOCATION_MAX_RETRIES" default:"3"`
	RateLimitMax         int           `envconfig:"RATE_LIMIT_MAX" default:"60"` // writes per client per minute, per route group
	BodyLimitBytes       int           `envconfig:"BODY_LIMIT_BYTES" default:"1048576"`
	ShutdownTimeout      time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads an optional .env file (ENV_FILE, default ".env") and then the
// process environment.
func Load() (Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err == nil {
		log.Printf("[config] loaded %s", envFile)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	log.Printf("[config] PORT=%s DB_DRIVER=%s DB_DSN=%s LOG_FILE=%s SEED_DEMO=%t ALLOCATION_MAX_RETRIES=%d",
		cfg.Port, cfg.DBDriver, redactDSN(cfg.DBDSN), cfg.LogFile, cfg.SeedDemo, cfg.AllocationMaxRetries)
	return cfg, nil
}

// redactDSN hides credentials in URL-style DSNs.
func redactDSN(dsn string) string {
	scheme := strings.Index(dsn, "://")
	at := strings.LastIndex(dsn, "@")
	if scheme < 0 || at < scheme {
		return dsn
	}
	return dsn[:scheme+3] + "***" + dsn[at:]
}
