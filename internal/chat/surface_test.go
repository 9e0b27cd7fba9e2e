package chat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/giziai/digital-human/domain"
	"github.com/giziai/digital-human/domain/entities"
	"github.com/giziai/digital-human/domain/repositories"
	"github.com/giziai/digital-human/internal/bubble"
	"github.com/giziai/digital-human/usecase"
)

const eventually = 2 * time.Second

type backendFunc func(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)

func (f backendFunc) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return f(ctx, req)
}

func answer(texts ...string) backendFunc {
	return func(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
		resp := &domain.ChatResponse{SessionUUID: "abc12345-6789"}
		for _, t := range texts {
			resp.Messages = append(resp.Messages, domain.RawReplyMessage{Text: t})
		}
		return resp, nil
	}
}

type testCapture struct {
	mu     sync.Mutex
	events chan repositories.CaptureEvent
	starts int
}

func (c *testCapture) Acquire(ctx context.Context) error { return nil }
func (c *testCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	return nil
}
func (c *testCapture) Stop() error                               { return nil }
func (c *testCapture) Events() <-chan repositories.CaptureEvent { return c.events }
func (c *testCapture) MimeType() string                          { return "audio/webm" }
func (c *testCapture) Release() error                            { return nil }

func newSurface(t *testing.T, b repositories.ChatBackend, capture repositories.AudioCapture) (*Surface, *clock.Mock) {
	t.Helper()
	return newSurfaceWithConfig(t, b, capture, Config{})
}

func newSurfaceWithConfig(t *testing.T, b repositories.ChatBackend, capture repositories.AudioCapture, config Config) (*Surface, *clock.Mock) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	clk := clock.NewMock()

	conv := usecase.NewConversation(b, entities.NewSession("local-session"), nil, usecase.ConversationConfig{Clock: clk}, logger)
	var rec *usecase.Recorder
	if capture != nil {
		rec = usecase.NewRecorder(capture, conv.SendAudio, BusyGate(conv), logger)
	}

	config.Clock = clk
	s := NewSurface(conv, rec, config, logger)
	s.Start(context.Background())
	t.Cleanup(s.Close)
	return s, clk
}

func waitView(t *testing.T, s *Surface, cond func(View) bool) View {
	t.Helper()
	require.Eventually(t, func() bool { return cond(s.View()) }, eventually, time.Millisecond,
		"view never matched, last: %+v", s.View())
	return s.View()
}

// dwellArmed reports whether the bubble dwell timer is running
func dwellArmed(s *Surface) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dwellTask != nil
}

func TestSurface_InitialView(t *testing.T) {
	s, _ := newSurface(t, answer("Hi"), nil)

	v := s.View()
	assert.Equal(t, Title, v.Title)
	assert.Equal(t, StatusIdle, v.Status)
	assert.Equal(t, "Sesi: local-se...", v.SessionLabel)
	assert.True(t, v.InputEnabled)
	assert.False(t, v.RecordEnabled, "no microphone")
	assert.False(t, v.CanSend("   "))
	assert.True(t, v.CanSend("halo"))
	assert.Nil(t, v.Message)
}

func TestSurface_SendShowsBubbleAndDwells(t *testing.T) {
	s, clk := newSurface(t, answer("Hi"), nil)

	require.True(t, s.SendMessage("  halo "))

	v := waitView(t, s, func(v View) bool { return v.Message != nil })
	assert.Equal(t, "Hi", v.Message.Text)
	assert.True(t, v.Speaking)
	assert.False(t, v.InputEnabled)
	assert.Equal(t, BadgeSpeaking, v.Badge)
	assert.Equal(t, "Sesi: abc12345...", v.SessionLabel)

	assert.False(t, s.SendMessage("lagi"), "no send while a message is current")

	clk.Add(bubble.DefaultInterval)
	clk.Add(bubble.DefaultInterval)
	waitView(t, s, func(v View) bool { return v.Bubble == bubble.Frame{Text: "Hi", Visible: true} })

	require.True(t, s.MessagePlayed(v.Message.Seq))
	v = waitView(t, s, func(v View) bool { return v.Message == nil })
	assert.True(t, v.Bubble.Visible, "bubble stays until the dwell timer expires")
	assert.True(t, v.InputEnabled)

	require.Eventually(t, func() bool { return dwellArmed(s) }, eventually, time.Millisecond)
	clk.Add(DefaultBubbleDwell)
	waitView(t, s, func(v View) bool { return !v.Bubble.Visible && v.Bubble.Text == "" })
}

func TestSurface_DwellStartsAfterRevealFinishes(t *testing.T) {
	text := strings.Repeat("a", 100)
	s, clk := newSurfaceWithConfig(t, answer(text), nil, Config{BubbleDwell: 2 * time.Second})

	require.True(t, s.SendMessage("halo"))
	waitView(t, s, func(v View) bool { return v.Message != nil && v.Bubble.Typing })
	assert.False(t, dwellArmed(s), "no dwell while typing")

	// 2.5s of ticks is longer than the dwell but shorter than the 5s reveal
	for i := 0; i < 50; i++ {
		clk.Add(bubble.DefaultInterval)
	}
	v := waitView(t, s, func(v View) bool { return v.Bubble.Text != "" })
	assert.True(t, v.Bubble.Visible)
	assert.True(t, v.Bubble.Typing)
	assert.False(t, dwellArmed(s))

	require.Eventually(t, func() bool {
		clk.Add(bubble.DefaultInterval)
		return s.View().Bubble == bubble.Frame{Text: text, Visible: true}
	}, eventually, time.Millisecond)
	require.Eventually(t, func() bool { return dwellArmed(s) }, eventually, time.Millisecond)

	clk.Add(time.Second)
	assert.True(t, s.View().Bubble.Visible, "dwell counts from the end of the reveal")

	clk.Add(time.Second)
	waitView(t, s, func(v View) bool { return !v.Bubble.Visible })
}

func TestSurface_SendHidesPreviousBubble(t *testing.T) {
	s, clk := newSurface(t, answer("Hi"), nil)

	require.True(t, s.SendMessage("halo"))
	v := waitView(t, s, func(v View) bool { return v.Message != nil })
	clk.Add(bubble.DefaultInterval)
	clk.Add(bubble.DefaultInterval)
	waitView(t, s, func(v View) bool { return v.Bubble.Text == "Hi" })

	require.True(t, s.MessagePlayed(v.Message.Seq))
	waitView(t, s, func(v View) bool { return v.Message == nil })

	require.True(t, s.SendMessage("lagi"))
	// The new reply is also "Hi"; it starts typing from empty again
	waitView(t, s, func(v View) bool {
		return v.Message != nil && v.Message.Seq == 2 && v.Bubble == bubble.Frame{Typing: true, Visible: true}
	})
}

func TestSurface_StaleAcknowledgement(t *testing.T) {
	s, _ := newSurface(t, answer("satu", "dua"), nil)

	require.True(t, s.SendMessage("halo"))
	waitView(t, s, func(v View) bool { return v.Message != nil })

	assert.False(t, s.MessagePlayed(2))
	assert.True(t, s.MessagePlayed(1))
	assert.False(t, s.MessagePlayed(1))

	v := waitView(t, s, func(v View) bool { return v.Message != nil && v.Message.Seq == 2 })
	assert.Equal(t, "dua", v.Message.Text)
}

func TestSurface_LoadingStatus(t *testing.T) {
	release := make(chan struct{})
	b := backendFunc(func(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
		<-release
		return answer("Hi")(ctx, req)
	})
	capture := &testCapture{events: make(chan repositories.CaptureEvent, 8)}
	s, _ := newSurface(t, b, capture)

	waitView(t, s, func(v View) bool { return v.RecordEnabled })

	require.True(t, s.SendMessage("halo"))
	v := waitView(t, s, func(v View) bool { return v.Loading })
	assert.Equal(t, StatusLoading, v.Status)
	assert.Equal(t, BadgeLoading, v.Badge)
	assert.False(t, v.InputEnabled)
	assert.False(t, v.RecordEnabled)

	assert.False(t, s.ToggleRecording(), "recording is ignored while loading")
	assert.False(t, s.SendMessage("lagi"))

	close(release)
	waitView(t, s, func(v View) bool { return !v.Loading && v.Message != nil })
}

func TestSurface_RecordingRoundTrip(t *testing.T) {
	var mu sync.Mutex
	var got domain.ChatRequest
	b := backendFunc(func(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
		mu.Lock()
		got = req
		mu.Unlock()
		return answer("Oke")(ctx, req)
	})
	capture := &testCapture{events: make(chan repositories.CaptureEvent, 8)}
	s, _ := newSurface(t, b, capture)

	waitView(t, s, func(v View) bool { return v.Recorder == "idle" })
	assert.False(t, s.StopRecording())
	require.True(t, s.StartRecording())

	v := waitView(t, s, func(v View) bool { return v.Recording })
	assert.Equal(t, StatusRecording, v.Status)

	capture.events <- repositories.ChunkReceived{Data: []byte{0x00}}
	capture.events <- repositories.ChunkReceived{Data: []byte{0x01}}
	require.True(t, s.StopRecording())
	capture.events <- repositories.RecordingStopped{}

	v = waitView(t, s, func(v View) bool { return v.Message != nil })
	assert.Equal(t, "Oke", v.Message.Text)
	assert.False(t, v.Recording)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, domain.RequestTypeAudio, got.Type)
	assert.Equal(t, "AAE=", got.AudioData)
}

func TestSurface_Close(t *testing.T) {
	s, _ := newSurface(t, answer("Hi"), nil)
	views, _ := s.Subscribe()

	s.Close()
	s.Close()
	assert.False(t, s.SendMessage("halo"))

	for range views {
	}
}
