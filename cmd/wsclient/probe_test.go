package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/giziai/digital-human/adapters/backend"
	"github.com/giziai/digital-human/adapters/memory"
	"github.com/giziai/digital-human/internal/api"
	"github.com/giziai/digital-human/internal/auth"
	"github.com/giziai/digital-human/internal/config"
	"github.com/giziai/digital-human/internal/websocket"
)

func startServer(t *testing.T) string {
	t.Helper()
	logger := zaptest.NewLogger(t)

	issuer, err := auth.NewIssuer("test-secret", "gizi-web", "s3cret")
	require.NoError(t, err)

	transcripts := memory.NewTranscriptRepository(0)
	hub := websocket.NewHub(backend.NewMockBackend(), transcripts, websocket.HubConfig{}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	e := echo.New()
	api.InitRoutes(e, hub, issuer, transcripts, logger)
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	return server.URL
}

func testOptions(server string) options {
	return options{
		server:    server,
		clientID:  "gizi-web",
		clientKey: "s3cret",
		chunkSize: 4,
		timeout:   10 * time.Second,
	}
}

func TestProbe_Text(t *testing.T) {
	opts := testOptions(startServer(t))
	opts.text = "telur"

	var out bytes.Buffer
	err := NewProbe(opts, &out, zaptest.NewLogger(t)).Run(context.Background())
	require.NoError(t, err)

	assert.Contains(t, out.String(), "[1] (smile, Talking_0) Halo! Saya GiziAI")
	assert.Contains(t, out.String(), "[2] (smile, Talking_1) Terima kasih atas pertanyaannya tentang 'telur'")
}

func TestProbe_AudioFile(t *testing.T) {
	opts := testOptions(startServer(t))
	opts.audioFile = filepath.Join(t.TempDir(), "sample.webm")
	require.NoError(t, os.WriteFile(opts.audioFile, []byte("0123456789"), 0o644))

	var out bytes.Buffer
	err := NewProbe(opts, &out, zaptest.NewLogger(t)).Run(context.Background())
	require.NoError(t, err)

	assert.Contains(t, out.String(), "rekaman suara sebesar 10 byte")
}

func TestProbe_AuthenticationFailure(t *testing.T) {
	opts := testOptions(startServer(t))
	opts.clientKey = "wrong"
	opts.text = "halo"

	err := NewProbe(opts, &bytes.Buffer{}, zaptest.NewLogger(t)).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication_failed")
}

func TestRootCommand_RequiresInput(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--text or --audio-file")
}

func TestOptions_WithDefaults(t *testing.T) {
	opts := options{clientKey: "flag-key"}
	opts.withDefaults(config.Config{Port: "9090", ClientID: "env-client", ClientKey: "env-key"})

	assert.Equal(t, "http://localhost:9090", opts.server)
	assert.Equal(t, "env-client", opts.clientID)
	assert.Equal(t, "flag-key", opts.clientKey)
}
