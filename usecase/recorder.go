package usecase

import (
	"bytes"
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/giziai/digital-human/domain/repositories"
	"github.com/giziai/digital-human/internal/notify"
)

// RecorderState is the microphone lifecycle as seen by surfaces
type RecorderState int

const (
	RecorderUnavailable RecorderState = iota
	RecorderIdle
	RecorderRecording
	RecorderStopping
)

func (s RecorderState) String() string {
	switch s {
	case RecorderUnavailable:
		return "unavailable"
	case RecorderIdle:
		return "idle"
	case RecorderRecording:
		return "recording"
	case RecorderStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Recorder turns capture events into one audio blob per recording and hands
// it to submit. Chunks live only between Start and the stop confirmation.
type Recorder struct {
	capture repositories.AudioCapture
	submit  func([]byte) bool
	busy    func() bool
	logger  *zap.Logger

	mu     sync.Mutex
	state  RecorderState
	chunks [][]byte
	states *notify.Latest[RecorderState]
}

// NewRecorder creates a recorder in the Unavailable state. busy may be nil.
func NewRecorder(capture repositories.AudioCapture, submit func([]byte) bool, busy func() bool, logger *zap.Logger) *Recorder {
	if busy == nil {
		busy = func() bool { return false }
	}
	return &Recorder{
		capture: capture,
		submit:  submit,
		busy:    busy,
		logger:  logger,
		state:   RecorderUnavailable,
		states:  notify.NewLatest[RecorderState](),
	}
}

// Init acquires the input device. Failure leaves the recorder Unavailable.
func (r *Recorder) Init(ctx context.Context) error {
	if err := r.capture.Acquire(ctx); err != nil {
		r.logger.Warn("Microphone unavailable", zap.Error(err))
		r.setState(RecorderUnavailable)
		return err
	}

	r.mu.Lock()
	if r.state == RecorderUnavailable {
		r.state = RecorderIdle
		r.states.Publish(r.state)
	}
	r.mu.Unlock()

	r.logger.Info("Microphone ready", zap.String("mimeType", r.capture.MimeType()))
	return nil
}

// Start begins a recording. It only succeeds from Idle with the busy gate clear.
func (r *Recorder) Start() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RecorderIdle || r.busy() {
		return false
	}

	r.chunks = nil
	if err := r.capture.Start(); err != nil {
		r.logger.Error("Failed to start recording", zap.Error(err))
		return false
	}

	r.state = RecorderRecording
	r.states.Publish(r.state)
	r.logger.Info("Recording started")
	return true
}

// Stop asks the capture to finish. The blob is submitted once it confirms.
func (r *Recorder) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RecorderRecording {
		return false
	}

	if err := r.capture.Stop(); err != nil {
		r.logger.Error("Failed to stop recording", zap.Error(err))
		r.chunks = nil
		r.state = RecorderIdle
		r.states.Publish(r.state)
		return false
	}

	r.state = RecorderStopping
	r.states.Publish(r.state)
	return true
}

// Toggle starts when idle and stops when recording
func (r *Recorder) Toggle() bool {
	if r.State() == RecorderRecording {
		return r.Stop()
	}
	return r.Start()
}

// Run consumes capture events until ctx is done
func (r *Recorder) Run(ctx context.Context) {
	events := r.capture.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.handle(ev)
		}
	}
}

func (r *Recorder) handle(ev repositories.CaptureEvent) {
	switch e := ev.(type) {
	case repositories.ChunkReceived:
		r.mu.Lock()
		if r.state == RecorderRecording || r.state == RecorderStopping {
			r.chunks = append(r.chunks, e.Data)
		}
		r.mu.Unlock()

	case repositories.RecordingStopped:
		r.mu.Lock()
		if r.state != RecorderRecording && r.state != RecorderStopping {
			r.mu.Unlock()
			return
		}
		blob := bytes.Join(r.chunks, nil)
		r.chunks = nil
		r.state = RecorderIdle
		r.states.Publish(r.state)
		r.mu.Unlock()

		r.logger.Info("Recording stopped",
			zap.Int("bytes", len(blob)),
			zap.String("mimeType", r.capture.MimeType()))

		if len(blob) == 0 {
			r.logger.Warn("Recording produced no audio")
			return
		}
		if !r.submit(blob) {
			r.logger.Warn("Recorded audio was not submitted", zap.Int("bytes", len(blob)))
		}

	case repositories.AcquisitionFailed:
		r.logger.Warn("Microphone lost", zap.Error(e.Err))
		r.mu.Lock()
		r.chunks = nil
		r.mu.Unlock()
		r.setState(RecorderUnavailable)
	}
}

// State returns the current recorder state
func (r *Recorder) State() RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Subscribe returns a latest-wins channel of state changes
func (r *Recorder) Subscribe() (<-chan RecorderState, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states.Subscribe(r.state)
}

// Release frees the device and closes subscriptions
func (r *Recorder) Release() error {
	r.mu.Lock()
	r.chunks = nil
	r.state = RecorderUnavailable
	r.mu.Unlock()

	err := r.capture.Release()
	r.states.Close()
	return err
}

func (r *Recorder) setState(s RecorderState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == s {
		return
	}
	r.state = s
	r.states.Publish(s)
}
