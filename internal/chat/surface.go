// Package chat is the presenter shared by every surface: it gates user
// actions, drives the speech bubble and publishes view snapshots.
package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/giziai/digital-human/domain/entities"
	"github.com/giziai/digital-human/internal/bubble"
	"github.com/giziai/digital-human/internal/notify"
	"github.com/giziai/digital-human/internal/schedule"
	"github.com/giziai/digital-human/usecase"
)

const (
	Title            = "GiziAI Digital Human"
	StatusLoading    = "Sedang memproses..."
	StatusRecording  = "🎤 Sedang merekam... (klik lagi untuk berhenti)"
	StatusIdle       = "Ketik pesan atau gunakan mikrofon untuk berbicara dengan ahli gizi AI."
	BadgeLoading     = "Memproses respons..."
	BadgeSpeaking    = "Sedang berbicara..."
	InputPlaceholder = "Ketik pertanyaan tentang gizi dan kesehatan..."

	DefaultBubbleDwell = 100 * time.Second
)

// View is everything a surface needs to draw the chat
type View struct {
	Title         string                 `json:"title"`
	Status        string                 `json:"status"`
	Badge         string                 `json:"badge,omitempty"`
	SessionLabel  string                 `json:"session_label"`
	Loading       bool                   `json:"loading"`
	Speaking      bool                   `json:"speaking"`
	Recording     bool                   `json:"recording"`
	Recorder      string                 `json:"recorder"`
	InputEnabled  bool                   `json:"input_enabled"`
	RecordEnabled bool                   `json:"record_enabled"`
	Bubble        bubble.Frame           `json:"bubble"`
	Message       *entities.ReplyMessage `json:"message"`
}

// CanSend reports whether text may be submitted from this view
func (v View) CanSend(text string) bool {
	return v.InputEnabled && strings.TrimSpace(text) != ""
}

// Config holds the optional Surface settings
type Config struct {
	Clock          clock.Clock
	BubbleInterval time.Duration
	BubbleDwell    time.Duration
}

// BusyGate reports whether conv is loading or has a message playing
func BusyGate(conv *usecase.Conversation) func() bool {
	return func() bool {
		st := conv.State()
		return st.Loading || st.Current != nil
	}
}

// Surface owns one application lifetime: the conversation, the optional
// recorder and the bubble. Close tears all of them down.
type Surface struct {
	conv   *usecase.Conversation
	rec    *usecase.Recorder
	bubble *bubble.Renderer
	clk    clock.Clock
	dwell  time.Duration
	logger *zap.Logger

	mu        sync.Mutex
	convState usecase.State
	recState  usecase.RecorderState
	frame     bubble.Frame
	lastSeq   uint64
	dwellTask *schedule.Task
	dwellGen  uint64
	closed    bool
	views     *notify.Latest[View]

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSurface wires the presenter. rec may be nil for surfaces without a microphone.
func NewSurface(conv *usecase.Conversation, rec *usecase.Recorder, config Config, logger *zap.Logger) *Surface {
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}
	dwell := config.BubbleDwell
	if dwell <= 0 {
		dwell = DefaultBubbleDwell
	}

	s := &Surface{
		conv:      conv,
		rec:       rec,
		clk:       clk,
		dwell:     dwell,
		logger:    logger,
		views:     notify.NewLatest[View](),
		convState: conv.State(),
		recState:  usecase.RecorderUnavailable,
	}
	s.bubble = bubble.NewRenderer(bubble.Config{
		Clock:      clk,
		Interval:   config.BubbleInterval,
		OnComplete: s.onRevealComplete,
	})
	return s
}

// Start initialises the recorder and begins tracking state until Close
func (s *Surface) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	convCh, cancelConv := s.conv.Subscribe()
	frameCh, cancelFrames := s.bubble.Subscribe()

	var recCh <-chan usecase.RecorderState
	cancelRec := func() {}
	if s.rec != nil {
		recCh, cancelRec = s.rec.Subscribe()
		if err := s.rec.Init(ctx); err != nil {
			s.logger.Warn("Recording disabled", zap.Error(err))
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.rec.Run(ctx)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancelConv()
		defer cancelFrames()
		defer cancelRec()
		s.watch(ctx, convCh, recCh, frameCh)
	}()
}

// InitRecorder retries acquiring the microphone
func (s *Surface) InitRecorder(ctx context.Context) error {
	if s.rec == nil {
		return nil
	}
	return s.rec.Init(ctx)
}

func (s *Surface) watch(ctx context.Context, convCh <-chan usecase.State, recCh <-chan usecase.RecorderState, frameCh <-chan bubble.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-convCh:
			if !ok {
				return
			}
			s.onConversation(st)
		case rs, ok := <-recCh:
			if !ok {
				recCh = nil
				continue
			}
			s.mu.Lock()
			s.recState = rs
			s.mu.Unlock()
		case f, ok := <-frameCh:
			if !ok {
				frameCh = nil
				continue
			}
			s.mu.Lock()
			s.frame = f
			s.mu.Unlock()
		}
		s.publish()
	}
}

func (s *Surface) onConversation(st usecase.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.convState = st
	if st.Current == nil || st.Current.Seq == s.lastSeq {
		return
	}
	s.lastSeq = st.Current.Seq

	if st.Current.Text == "" {
		return
	}
	s.logger.Debug("Showing speech bubble", zap.Uint64("seq", st.Current.Seq))
	s.cancelDwellLocked()
	s.bubble.Set(st.Current.Text, true)

	// An identical text already on screen is not revealed again
	if f := s.bubble.Frame(); f.Visible && !f.Typing && f.Text == st.Current.Text {
		s.armDwellLocked()
	}
}

// onRevealComplete starts the dwell once the typewriter has shown all of text
func (s *Surface) onRevealComplete(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.dwellTask != nil || text != s.bubble.Text() {
		return
	}
	s.logger.Debug("Speech bubble typing completed", zap.Int("length", len(text)))
	s.armDwellLocked()
}

func (s *Surface) armDwellLocked() {
	s.cancelDwellLocked()
	gen := s.dwellGen
	s.dwellTask = schedule.After(s.clk, s.dwell, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || gen != s.dwellGen {
			return
		}
		s.dwellTask = nil
		s.bubble.Set("", false)
	})
}

func (s *Surface) cancelDwellLocked() {
	s.dwellTask.Cancel()
	s.dwellTask = nil
	s.dwellGen++
}

func (s *Surface) hideBubbleLocked() {
	s.cancelDwellLocked()
	s.bubble.Set("", false)
}

// SendMessage submits text when nothing is loading or playing
func (s *Surface) SendMessage(text string) bool {
	text = strings.TrimSpace(text)
	st := s.conv.State()
	if st.Loading || st.Current != nil || text == "" {
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.hideBubbleLocked()
	s.mu.Unlock()

	return s.conv.SendText(text)
}

// ToggleRecording starts or stops recording. It is ignored while loading or speaking.
func (s *Surface) ToggleRecording() bool {
	if s.rec == nil {
		return false
	}
	st := s.conv.State()
	if st.Loading || st.Current != nil {
		return false
	}
	return s.rec.Toggle()
}

// StartRecording starts recording when idle
func (s *Surface) StartRecording() bool {
	if s.rec == nil || s.rec.State() != usecase.RecorderIdle {
		return false
	}
	return s.ToggleRecording()
}

// StopRecording stops a running recording
func (s *Surface) StopRecording() bool {
	if s.rec == nil || s.rec.State() != usecase.RecorderRecording {
		return false
	}
	return s.ToggleRecording()
}

// MessagePlayed acknowledges playback of the message with seq. Zero
// acknowledges whatever is current; stale sequences are ignored.
func (s *Surface) MessagePlayed(seq uint64) bool {
	return s.conv.OnPlayedSeq(seq)
}

// View returns the current snapshot
func (s *Surface) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Subscribe returns a latest-wins channel of views
func (s *Surface) Subscribe() (<-chan View, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views.Subscribe(s.viewLocked())
}

// Conversation returns the underlying conversation
func (s *Surface) Conversation() *usecase.Conversation {
	return s.conv
}

func (s *Surface) publish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.views.Publish(s.viewLocked())
}

func (s *Surface) viewLocked() View {
	st := s.convState
	speaking := st.Current != nil
	recording := s.recState == usecase.RecorderRecording

	v := View{
		Title:         Title,
		Status:        StatusIdle,
		SessionLabel:  "Sesi: " + entities.ShortID(st.SessionID) + "...",
		Loading:       st.Loading,
		Speaking:      speaking,
		Recording:     recording,
		Recorder:      s.recState.String(),
		InputEnabled:  !st.Loading && !speaking,
		RecordEnabled: s.recState != usecase.RecorderUnavailable && !st.Loading && !speaking,
		Bubble:        s.frame,
		Message:       st.Current,
	}

	switch {
	case st.Loading:
		v.Status = StatusLoading
		v.Badge = BadgeLoading
	case recording:
		v.Status = StatusRecording
	}
	if speaking && !st.Loading {
		v.Badge = BadgeSpeaking
	}
	return v
}

// Close tears down timers, the bubble, the recorder and the conversation
func (s *Surface) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancelDwellLocked()
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	s.bubble.Close()
	if s.rec != nil {
		if err := s.rec.Release(); err != nil {
			s.logger.Warn("Failed to release microphone", zap.Error(err))
		}
	}
	s.conv.Close()
	s.views.Close()
}
