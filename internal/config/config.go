package config

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/crypto/hkdf"
)

type Config struct {
	// backend
	BackendURL   string        `envconfig:"BACKEND_URL" default:"http://localhost:5000"`
	BackendToken string        `envconfig:"BACKEND_TOKEN"`
	HTTPTimeout  time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`

	// poller
	PollBudget    time.Duration `envconfig:"POLL_BUDGET" default:"300s"`
	PollInterval  time.Duration `envconfig:"POLL_INTERVAL" default:"3s"`
	CountdownStep time.Duration `envconfig:"POLL_COUNTDOWN_STEP"`
	StatusSource  string        `envconfig:"STATUS_SOURCE" default:"backend"`

	// handoff surface
	ListenAddr     string `envconfig:"LISTEN_ADDR" default:":8090"`
	BaseURL        string `envconfig:"BASE_URL" default:"http://localhost:8090"`
	HandoffMode    string `envconfig:"HANDOFF_MODE" default:"embed"`
	HandoffSecret  string `envconfig:"HANDOFF_SECRET"`
	CookieHashKey  []byte `ignored:"true"`
	CookieBlockKey []byte `ignored:"true"`

	// journal
	DatabaseURL string `envconfig:"DATABASE_URL"`
	JournalKey  []byte `ignored:"true"`

	// integrations
	AMQPURL        string `envconfig:"AMQP_URL"`
	AMQPExchange   string `envconfig:"AMQP_EXCHANGE" default:"bookings"`
	OmisePublicKey string `envconfig:"OMISE_PUBLIC_KEY"`
	OmiseSecretKey string `envconfig:"OMISE_SECRET_KEY"`
	OTLPEndpoint   string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName    string `envconfig:"SERVICE_NAME" default:"pickleboom"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat      string `envconfig:"LOG_FORMAT" default:"text"`
}

// FromEnv loads .env (if present) and then the process environment.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.PollBudget <= 0 {
		return Config{}, fmt.Errorf("invalid POLL_BUDGET")
	}
	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("invalid POLL_INTERVAL")
	}
	if cfg.CountdownStep <= 0 {
		cfg.CountdownStep = cfg.PollInterval
	}
	switch cfg.HandoffMode {
	case "embed", "redirect":
	default:
		return Config{}, fmt.Errorf("HANDOFF_MODE must be embed or redirect (got %q)", cfg.HandoffMode)
	}
	switch cfg.StatusSource {
	case "backend":
	case "omise":
		if cfg.OmisePublicKey == "" || cfg.OmiseSecretKey == "" {
			return Config{}, fmt.Errorf("STATUS_SOURCE=omise requires OMISE_PUBLIC_KEY and OMISE_SECRET_KEY")
		}
	default:
		return Config{}, fmt.Errorf("STATUS_SOURCE must be backend or omise (got %q)", cfg.StatusSource)
	}

	if err := cfg.loadCookieKeys(); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("JOURNAL_KEY"); v != "" {
		k, err := decodeB64(v)
		if err != nil {
			return Config{}, fmt.Errorf("JOURNAL_KEY: %w", err)
		}
		if len(k) != 32 {
			return Config{}, fmt.Errorf("JOURNAL_KEY must decode to 32 bytes (got %d)", len(k))
		}
		cfg.JournalKey = k
	}
	return cfg, nil
}

// loadCookieKeys prefers explicit COOKIE_HASH_KEY/COOKIE_BLOCK_KEY and falls
// back to deriving both from HANDOFF_SECRET.
func (c *Config) loadCookieKeys() error {
	hashKey := os.Getenv("COOKIE_HASH_KEY")
	blockKey := os.Getenv("COOKIE_BLOCK_KEY")
	if hashKey != "" && blockKey != "" {
		var err error
		c.CookieHashKey, err = decodeB64(hashKey)
		if err != nil {
			return fmt.Errorf("COOKIE_HASH_KEY: %w", err)
		}
		c.CookieBlockKey, err = decodeB64(blockKey)
		if err != nil {
			return fmt.Errorf("COOKIE_BLOCK_KEY: %w", err)
		}
		return nil
	}
	if c.HandoffSecret == "" {
		// keys stay empty; only commands that serve the handoff surface need them
		return nil
	}
	var err error
	c.CookieHashKey, c.CookieBlockKey, err = DeriveCookieKeys([]byte(c.HandoffSecret))
	return err
}

// HasCookieKeys reports whether the handoff surface can sign cookies.
func (c Config) HasCookieKeys() bool {
	return len(c.CookieHashKey) > 0 && len(c.CookieBlockKey) > 0
}

// DeriveCookieKeys expands one secret into a 32-byte hash key and a 32-byte
// AES block key.
func DeriveCookieKeys(secret []byte) (hashKey, blockKey []byte, err error) {
	r := hkdf.New(sha256.New, secret, nil, []byte("pickleboom handoff cookie"))
	hashKey = make([]byte, 32)
	blockKey = make([]byte, 32)
	if _, err := io.ReadFull(r, hashKey); err != nil {
		return nil, nil, err
	}
	if _, err := io.ReadFull(r, blockKey); err != nil {
		return nil, nil, err
	}
	return hashKey, blockKey, nil
}

func decodeB64(s string) ([]byte, error) {
	b, err := os.ReadFile(s)
	if err == nil {
		// allow pointing to file path for k8s secret mounts
		s = string(b)
	}
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
