package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/giziai/digital-human/domain"
	"github.com/giziai/digital-human/domain/entities"
)

func TestNewHTTPBackend_Defaults(t *testing.T) {
	b, err := NewHTTPBackend(HTTPConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000/api/digital-human/chat", b.Endpoint())
	assert.Equal(t, defaultTimeout, b.client.Timeout)
}

func TestNewHTTPBackend_InvalidConfig(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := NewHTTPBackend(HTTPConfig{BaseURL: "ftp://example.com"}, logger)
	assert.Error(t, err)

	_, err = NewHTTPBackend(HTTPConfig{Timeout: -time.Second}, logger)
	assert.Error(t, err)
}

func TestNewHTTPConfigFromEnv(t *testing.T) {
	t.Setenv("BACKEND_URL", "http://gizi.local:5000/")
	t.Setenv("CHAT_PATH", "api/chat")
	t.Setenv("REQUEST_TIMEOUT", "15s")

	config := NewHTTPConfigFromEnv()
	assert.Equal(t, 15*time.Second, config.Timeout)

	b, err := NewHTTPBackend(config, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "http://gizi.local:5000/api/chat", b.Endpoint())
}

func TestHTTPBackend_ChatText(t *testing.T) {
	var got domain.ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/digital-human/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"session_uuid":"abc","messages":[{"text":"Hi"}]}`))
	}))
	defer server.Close()

	b, err := NewHTTPBackend(HTTPConfig{BaseURL: server.URL}, zaptest.NewLogger(t))
	require.NoError(t, err)

	session := "local-session"
	resp, err := b.Chat(context.Background(), domain.ChatRequest{
		Message:     "halo",
		Type:        domain.RequestTypeText,
		SessionUUID: &session,
	})
	require.NoError(t, err)

	assert.Equal(t, "halo", got.Message)
	assert.Equal(t, domain.RequestTypeText, got.Type)
	require.NotNil(t, got.SessionUUID)
	assert.Equal(t, "local-session", *got.SessionUUID)

	assert.Equal(t, "abc", resp.SessionUUID)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "Hi", resp.Messages[0].Text)
	assert.Nil(t, resp.Messages[0].Lipsync)
}

func TestHTTPBackend_NullSession(t *testing.T) {
	var raw map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{"session_uuid":"new","messages":[]}`))
	}))
	defer server.Close()

	b, err := NewHTTPBackend(HTTPConfig{BaseURL: server.URL}, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = b.Chat(context.Background(), domain.ChatRequest{AudioData: "AAE=", Type: domain.RequestTypeAudio})
	require.NoError(t, err)

	value, present := raw["session_uuid"]
	assert.True(t, present, "session_uuid must always be sent")
	assert.Nil(t, value)
	assert.Equal(t, "AAE=", raw["audio_data"])
	assert.NotContains(t, raw, "message")
}

func TestHTTPBackend_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	b, err := NewHTTPBackend(HTTPConfig{BaseURL: server.URL}, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = b.Chat(context.Background(), domain.ChatRequest{Message: "halo", Type: domain.RequestTypeText})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnexpectedStatus))

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

func TestHTTPBackend_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"session_uuid":`))
	}))
	defer server.Close()

	b, err := NewHTTPBackend(HTTPConfig{BaseURL: server.URL}, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = b.Chat(context.Background(), domain.ChatRequest{Message: "halo", Type: domain.RequestTypeText})
	assert.Error(t, err)
}

func TestHTTPBackend_MistypedReplyFieldsKeepResponse(t *testing.T) {
	bodies := map[string]string{
		"lipsync string":   `{"session_uuid":"abc","messages":[{"text":"Makan sayur","lipsync":"none"}]}`,
		"mouthCues string": `{"session_uuid":"abc","messages":[{"text":"Makan sayur","lipsync":{"mouthCues":"x"}}]}`,
		"start string":     `{"session_uuid":"abc","messages":[{"text":"Makan sayur","lipsync":{"mouthCues":[{"start":"0","end":1,"value":"A"}]}}]}`,
		"audio number":     `{"session_uuid":"abc","messages":[{"text":"Makan sayur","audio":12}]}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			b, err := NewHTTPBackend(HTTPConfig{BaseURL: server.URL}, zaptest.NewLogger(t))
			require.NoError(t, err)

			resp, err := b.Chat(context.Background(), domain.ChatRequest{Message: "halo", Type: domain.RequestTypeText})
			require.NoError(t, err)
			assert.Equal(t, "abc", resp.SessionUUID)
			require.Len(t, resp.Messages, 1)

			msg := entities.NormalizeReply(resp.Messages[0])
			assert.Equal(t, "Makan sayur", msg.Text)
			assert.False(t, msg.HasAudio())
			assert.Equal(t, entities.FallbackLipsync(), msg.Lipsync)
		})
	}
}

func TestHTTPBackend_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	b, err := NewHTTPBackend(HTTPConfig{BaseURL: url}, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = b.Chat(context.Background(), domain.ChatRequest{Message: "halo", Type: domain.RequestTypeText})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnexpectedStatus))
}

func TestMockBackend_Chat(t *testing.T) {
	m := NewMockBackend()
	ctx := context.Background()

	first, err := m.Chat(ctx, domain.ChatRequest{Message: "sayur", Type: domain.RequestTypeText})
	require.NoError(t, err)
	require.NotEmpty(t, first.SessionUUID)
	assert.Len(t, first.Messages, 2, "first turn includes a greeting")

	second, err := m.Chat(ctx, domain.ChatRequest{Message: "buah", Type: domain.RequestTypeText, SessionUUID: &first.SessionUUID})
	require.NoError(t, err)
	assert.Equal(t, first.SessionUUID, second.SessionUUID)
	assert.Len(t, second.Messages, 1)
	assert.Contains(t, second.Messages[0].Text, "buah")

	_, err = m.Chat(ctx, domain.ChatRequest{AudioData: "not base64!", Type: domain.RequestTypeAudio})
	assert.Error(t, err)
}

func TestMockBackend_ForgetsOldestSession(t *testing.T) {
	m := NewMockBackendWithLimit(2)
	ctx := context.Background()

	var ids []string
	for _, msg := range []string{"satu", "dua", "tiga"} {
		resp, err := m.Chat(ctx, domain.ChatRequest{Message: msg, Type: domain.RequestTypeText})
		require.NoError(t, err)
		ids = append(ids, resp.SessionUUID)
	}
	assert.Equal(t, 2, m.Sessions())

	// The newest session is still known and continues without a greeting
	resp, err := m.Chat(ctx, domain.ChatRequest{Message: "lagi", Type: domain.RequestTypeText, SessionUUID: &ids[2]})
	require.NoError(t, err)
	assert.Equal(t, ids[2], resp.SessionUUID)
	assert.Len(t, resp.Messages, 1)

	// The oldest was evicted, so it gets a fresh session and a greeting
	resp, err = m.Chat(ctx, domain.ChatRequest{Message: "lagi", Type: domain.RequestTypeText, SessionUUID: &ids[0]})
	require.NoError(t, err)
	assert.NotEqual(t, ids[0], resp.SessionUUID)
	assert.Len(t, resp.Messages, 2)
	assert.Equal(t, 2, m.Sessions())
}
