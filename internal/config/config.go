package config

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBadger = "badger"
)

type Config struct {
	Env             string        `env:"APP_ENV,default=dev"`
	HTTPAddr        string        `env:"HTTP_ADDR,default=:8080"`
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s"`
	StaticDir       string        `env:"STATIC_DIR,default=./static"`
	PublicBaseURL   string        `env:"PUBLIC_BASE_URL,default=http://localhost:8080"`
	CORSAllow       string        `env:"CORS_ALLOW,default=*"`

	StoreBackend   string `env:"STORE_BACKEND,default=memory"`
	RedisAddr      string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisDB        int    `env:"REDIS_DB,default=0"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX,default=duo:"`
	BadgerPath     string `env:"BADGER_PATH,default=./data/badger"`

	TokenSecret  string        `env:"TOKEN_SECRET,default=dev-secret-change"`
	TokenTimeout time.Duration `env:"TOKEN_TIMEOUT,default=30m"`
	MailboxCap   int           `env:"MAILBOX_CAP,default=64"`

	StunServer     string `env:"STUN_SERVER"`
	TurnServer     string `env:"TURN_SERVER"`
	TurnCredential string `env:"TURN_CREDENTIAL"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendRedis, BackendBadger:
	default:
		return fmt.Errorf("config: STORE_BACKEND must be one of memory, redis, badger, got %q", c.StoreBackend)
	}
	if c.TokenTimeout <= 0 {
		return fmt.Errorf("config: TOKEN_TIMEOUT must be > 0, got %s", c.TokenTimeout)
	}
	if c.MailboxCap < 0 {
		return fmt.Errorf("config: MAILBOX_CAP must be >= 0, got %d", c.MailboxCap)
	}
	if c.TokenSecret == "" {
		return fmt.Errorf("config: TOKEN_SECRET is required")
	}
	if c.IsProd() && c.TokenSecret == "dev-secret-change" {
		return fmt.Errorf("config: TOKEN_SECRET must be set in prod")
	}
	return nil
}

func (c Config) IsProd() bool {
	return c.Env == "prod"
}

// CORSOrigins splits CORS_ALLOW into trimmed, non-empty origins.
func (c Config) CORSOrigins() []string {
	var out []string
	for _, s := range strings.Split(c.CORSAllow, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
