package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendModeHTTP = "http"
	BackendModeMock = "mock"
)

type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Chat backend
	BackendURL     string
	ChatPath       string
	BackendMode    string
	RequestTimeout time.Duration

	// Speech bubble
	BubbleInterval time.Duration
	BubbleDwell    time.Duration

	// Surface authentication
	JWTSecret     string
	ClientID      string
	ClientKey     string
	AllowedOrigin string

	// Websocket surfaces without user activity are closed after IdleTimeout; 0 disables
	IdleTimeout time.Duration

	// Transcript storage; in-memory when MongoURI is empty
	MongoURI      string
	MongoDatabase string

	// Console microphone
	RecordCommand string
}

// Load reads .env if present, then the environment
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:          getEnvDefault("PORT", "8080"),
		Env:           getEnvDefault("ENV", "development"),
		LogLevel:      getEnvDefault("LOG_LEVEL", "info"),
		BackendURL:    getEnvDefault("BACKEND_URL", "http://localhost:5000"),
		ChatPath:      getEnvDefault("CHAT_PATH", "/api/digital-human/chat"),
		BackendMode:   strings.ToLower(getEnvDefault("BACKEND_MODE", BackendModeHTTP)),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		ClientID:      getEnvDefault("CLIENT_ID", "gizi-web"),
		ClientKey:     os.Getenv("CLIENT_KEY"),
		AllowedOrigin: getEnvDefault("ALLOWED_ORIGIN", "*"),
		MongoURI:      os.Getenv("MONGODB_URI"),
		MongoDatabase: getEnvDefault("MONGODB_DATABASE", "gizi_companion"),
		RecordCommand: os.Getenv("RECORD_COMMAND"),
	}

	var err error
	if cfg.RequestTimeout, err = getEnvDurationDefault("REQUEST_TIMEOUT", 60*time.Second); err != nil {
		return cfg, err
	}
	if cfg.BubbleInterval, err = getEnvDurationDefault("BUBBLE_INTERVAL", 50*time.Millisecond); err != nil {
		return cfg, err
	}
	if cfg.BubbleDwell, err = getEnvDurationDefault("BUBBLE_DWELL", 100*time.Second); err != nil {
		return cfg, err
	}
	if cfg.IdleTimeout, err = getEnvDurationDefault("IDLE_TIMEOUT", 30*time.Minute); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks the values Load cannot default safely
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}

	switch c.BackendMode {
	case BackendModeHTTP:
		u, err := url.Parse(c.BackendURL)
		if err != nil || c.BackendURL == "" {
			return fmt.Errorf("invalid BACKEND_URL %q", c.BackendURL)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("BACKEND_URL must be http or https, got %q", u.Scheme)
		}
	case BackendModeMock:
	default:
		return fmt.Errorf("BACKEND_MODE must be %q or %q, got %q", BackendModeHTTP, BackendModeMock, c.BackendMode)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.BubbleInterval <= 0 {
		return fmt.Errorf("BUBBLE_INTERVAL must be positive, got %s", c.BubbleInterval)
	}
	if c.BubbleDwell <= 0 {
		return fmt.Errorf("BUBBLE_DWELL must be positive, got %s", c.BubbleDwell)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("IDLE_TIMEOUT cannot be negative, got %s", c.IdleTimeout)
	}

	if c.IsProduction() && c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required in production")
	}

	return nil
}

// IsProduction reports whether ENV is production
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvDurationDefault(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
