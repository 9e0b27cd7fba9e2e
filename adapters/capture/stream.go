package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/giziai/digital-human/domain/repositories"
)

// Command is a control instruction sent to the remote microphone
type Command string

const (
	CommandStart Command = "capture_start"
	CommandStop  Command = "capture_stop"
)

const (
	defaultStreamMimeType = "audio/webm"
	eventBufferSize       = 64
)

var (
	ErrNotAcquired      = errors.New("capture device not acquired")
	ErrAlreadyRecording = errors.New("capture already recording")
	ErrNotRecording     = errors.New("capture not recording")
	ErrReleased         = errors.New("capture released")
)

// StreamCapture is an AudioCapture whose microphone lives on the remote
// surface. Chunks and lifecycle notifications are pushed in by the transport,
// and Start/Stop are forwarded to the surface through the sink.
type StreamCapture struct {
	mu          sync.Mutex
	sink        func(Command) error
	events      chan repositories.CaptureEvent
	done        chan struct{}
	mimeType    string
	acquired    bool
	unavailable error
	recording   bool
	released    bool
	logger      *zap.Logger
}

var _ repositories.AudioCapture = (*StreamCapture)(nil)

// NewStreamCapture creates a capture that forwards commands to sink
func NewStreamCapture(sink func(Command) error, mimeType string, logger *zap.Logger) *StreamCapture {
	if mimeType == "" {
		mimeType = defaultStreamMimeType
	}
	return &StreamCapture{
		sink:     sink,
		events:   make(chan repositories.CaptureEvent, eventBufferSize),
		done:     make(chan struct{}),
		mimeType: mimeType,
		logger:   logger,
	}
}

// Acquire succeeds unless the surface already reported the microphone as unavailable
func (s *StreamCapture) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return ErrReleased
	}
	if s.unavailable != nil {
		return fmt.Errorf("microphone unavailable: %w", s.unavailable)
	}
	s.acquired = true
	return nil
}

// Start asks the surface to begin recording
func (s *StreamCapture) Start() error {
	s.mu.Lock()
	if !s.acquired {
		s.mu.Unlock()
		return ErrNotAcquired
	}
	if s.recording {
		s.mu.Unlock()
		return ErrAlreadyRecording
	}
	s.recording = true
	s.mu.Unlock()

	if err := s.sink(CommandStart); err != nil {
		s.mu.Lock()
		s.recording = false
		s.mu.Unlock()
		return fmt.Errorf("failed to send start command: %w", err)
	}
	return nil
}

// Stop asks the surface to stop; RecordingStopped follows once it confirms
func (s *StreamCapture) Stop() error {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return ErrNotRecording
	}
	s.mu.Unlock()

	if err := s.sink(CommandStop); err != nil {
		return fmt.Errorf("failed to send stop command: %w", err)
	}
	return nil
}

// Events implements repositories.AudioCapture
func (s *StreamCapture) Events() <-chan repositories.CaptureEvent {
	return s.events
}

// MimeType implements repositories.AudioCapture
func (s *StreamCapture) MimeType() string {
	return s.mimeType
}

// Release implements repositories.AudioCapture
func (s *StreamCapture) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil
	}
	s.released = true
	s.acquired = false
	s.recording = false
	close(s.done)
	return nil
}

// PushChunk delivers a chunk of recorded audio from the surface.
// Chunks arriving outside a recording are dropped.
func (s *StreamCapture) PushChunk(data []byte) {
	if len(data) == 0 {
		return
	}

	s.mu.Lock()
	recording := s.recording
	s.mu.Unlock()

	if !recording {
		s.logger.Debug("Dropping audio chunk outside recording", zap.Int("bytes", len(data)))
		return
	}

	chunk := make([]byte, len(data))
	copy(chunk, data)
	s.emit(repositories.ChunkReceived{Data: chunk})
}

// MarkStopped is called when the surface confirms the recorder flushed its last chunk
func (s *StreamCapture) MarkStopped() {
	s.mu.Lock()
	wasRecording := s.recording
	s.recording = false
	s.mu.Unlock()

	if !wasRecording {
		return
	}
	s.emit(repositories.RecordingStopped{})
}

// MarkReady clears a previous unavailability report
func (s *StreamCapture) MarkReady() {
	s.mu.Lock()
	s.unavailable = nil
	s.mu.Unlock()
}

// MarkUnavailable records that the surface could not open its microphone
func (s *StreamCapture) MarkUnavailable(reason string) {
	if reason == "" {
		reason = "permission denied"
	}
	err := errors.New(reason)

	s.mu.Lock()
	s.unavailable = err
	s.acquired = false
	s.recording = false
	s.mu.Unlock()

	s.logger.Warn("Surface reported microphone unavailable", zap.String("reason", reason))
	s.emit(repositories.AcquisitionFailed{Err: err})
}

func (s *StreamCapture) emit(event repositories.CaptureEvent) {
	select {
	case s.events <- event:
	case <-s.done:
	}
}
