package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/giziai/digital-human/domain"
	"github.com/giziai/digital-human/domain/repositories"
)

const (
	defaultBaseURL        = "http://localhost:5000"
	defaultChatPath       = "/api/digital-human/chat"
	defaultTimeout        = 60 * time.Second
	defaultMaxBodyBytes   = 32 << 20 // replies embed base64 audio
	maxErrorBodyLogLength = 512
)

// ErrUnexpectedStatus is matched by StatusError via errors.Is
var ErrUnexpectedStatus = errors.New("unexpected status from chat backend")

// StatusError is returned when the backend answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

// HTTPConfig holds configuration for the HTTPBackend adapter
// Optional fields with defaults:
// - BaseURL: backend address (default: "http://localhost:5000")
// - ChatPath: endpoint path (default: "/api/digital-human/chat")
// - Timeout: per request timeout (default: 60s)
// - MaxBodyBytes: response size cap (default: 32MB)
type HTTPConfig struct {
	BaseURL      string
	ChatPath     string
	Timeout      time.Duration
	MaxBodyBytes int64
}

// HTTPBackend implements ChatBackend over JSON/HTTP
type HTTPBackend struct {
	endpoint     string
	client       *http.Client
	maxBodyBytes int64
	logger       *zap.Logger
}

// Ensure HTTPBackend implements the ChatBackend interface
var _ repositories.ChatBackend = (*HTTPBackend)(nil)

// ValidateHTTPConfig validates the HTTPConfig
func ValidateHTTPConfig(config HTTPConfig) error {
	if config.BaseURL != "" {
		u, err := url.Parse(config.BaseURL)
		if err != nil {
			return fmt.Errorf("invalid backend URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("backend URL must be http or https, got %q", u.Scheme)
		}
	}

	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be positive, got %s", config.Timeout)
	}

	if config.MaxBodyBytes < 0 {
		return fmt.Errorf("max body bytes must be positive, got %d", config.MaxBodyBytes)
	}

	return nil
}

// NewHTTPBackend creates a new chat backend client
func NewHTTPBackend(config HTTPConfig, logger *zap.Logger) (*HTTPBackend, error) {
	if err := ValidateHTTPConfig(config); err != nil {
		return nil, err
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
		logger.Info("Using default backend URL", zap.String("baseURL", baseURL))
	}

	chatPath := config.ChatPath
	if chatPath == "" {
		chatPath = defaultChatPath
	}
	if !strings.HasPrefix(chatPath, "/") {
		chatPath = "/" + chatPath
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	maxBodyBytes := config.MaxBodyBytes
	if maxBodyBytes == 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}

	return &HTTPBackend{
		endpoint:     strings.TrimRight(baseURL, "/") + chatPath,
		client:       &http.Client{Timeout: timeout},
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}, nil
}

// NewHTTPConfigFromEnv creates a new HTTPConfig from environment variables
func NewHTTPConfigFromEnv() HTTPConfig {
	config := HTTPConfig{
		BaseURL:  os.Getenv("BACKEND_URL"),
		ChatPath: os.Getenv("CHAT_PATH"),
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			config.Timeout = d
		}
	}
	return config
}

// Endpoint returns the full chat URL
func (b *HTTPBackend) Endpoint() string {
	return b.endpoint
}

// Chat posts the request and decodes the reply
func (b *HTTPBackend) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	b.logger.Debug("Sending chat request",
		zap.String("type", string(req.Type)),
		zap.Int("bodyBytes", len(body)))

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLogLength))
		b.logger.Warn("Chat backend returned error",
			zap.Int("statusCode", resp.StatusCode),
			zap.String("response", string(errorBody)))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(errorBody)}
	}

	var chatResp domain.ChatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, b.maxBodyBytes)).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	b.logger.Debug("Chat response received",
		zap.String("sessionUUID", chatResp.SessionUUID),
		zap.Int("messages", len(chatResp.Messages)))

	return &chatResp, nil
}
