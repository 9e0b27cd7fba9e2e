package repositories

import "context"

// AudioCapture abstracts the platform microphone primitive.
// A capture holds the device exclusively between Acquire and Release.
type AudioCapture interface {
	// Acquire takes hold of the input device
	Acquire(ctx context.Context) error
	// Start begins a recording; chunks arrive as ChunkReceived events
	Start() error
	// Stop ends the recording; a RecordingStopped event follows the last chunk
	Stop() error
	// Events delivers capture events to the owner
	Events() <-chan CaptureEvent
	// MimeType describes the encoding of the chunks
	MimeType() string
	// Release frees the device
	Release() error
}

// CaptureEvent is one of ChunkReceived, RecordingStopped or AcquisitionFailed
type CaptureEvent interface {
	isCaptureEvent()
}

// ChunkReceived carries an incremental piece of recorded audio
type ChunkReceived struct {
	Data []byte
}

// RecordingStopped signals that no more chunks follow for this recording
type RecordingStopped struct{}

// AcquisitionFailed signals the device is unavailable
type AcquisitionFailed struct {
	Err error
}

func (ChunkReceived) isCaptureEvent()     {}
func (RecordingStopped) isCaptureEvent()  {}
func (AcquisitionFailed) isCaptureEvent() {}
