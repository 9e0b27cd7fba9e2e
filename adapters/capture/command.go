package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/giziai/digital-human/domain/repositories"
)

const (
	DefaultRecordCommand   = "arecord -q -f S16_LE -r 16000 -c 1 -t wav -"
	defaultCommandMimeType = "audio/wav"
	readChunkSize          = 4096
)

// CommandCapture records through an external program that writes audio to stdout
type CommandCapture struct {
	mu       sync.Mutex
	args     []string
	mimeType string
	events   chan repositories.CaptureEvent
	done     chan struct{}
	cmd      *exec.Cmd
	acquired bool
	released bool
	logger   *zap.Logger
}

var _ repositories.AudioCapture = (*CommandCapture)(nil)

// NewCommandCapture parses command into program and arguments.
// An empty command uses DefaultRecordCommand.
func NewCommandCapture(command string, logger *zap.Logger) *CommandCapture {
	if strings.TrimSpace(command) == "" {
		command = DefaultRecordCommand
	}
	return &CommandCapture{
		args:     strings.Fields(command),
		mimeType: defaultCommandMimeType,
		events:   make(chan repositories.CaptureEvent, eventBufferSize),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// Acquire checks that the recorder program exists
func (c *CommandCapture) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return ErrReleased
	}
	if _, err := exec.LookPath(c.args[0]); err != nil {
		return fmt.Errorf("recorder %q not available: %w", c.args[0], err)
	}
	c.acquired = true
	return nil
}

// Start launches the recorder and streams its stdout as chunks
func (c *CommandCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.acquired {
		return ErrNotAcquired
	}
	if c.cmd != nil {
		return ErrAlreadyRecording
	}

	cmd := exec.Command(c.args[0], c.args[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open recorder output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start recorder: %w", err)
	}

	c.cmd = cmd
	c.logger.Debug("Recorder started", zap.String("program", c.args[0]), zap.Int("pid", cmd.Process.Pid))

	go c.pump(cmd, stdout)
	return nil
}

func (c *CommandCapture) pump(cmd *exec.Cmd, stdout io.Reader) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.emit(repositories.ChunkReceived{Data: chunk})
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				c.logger.Warn("Recorder output read failed", zap.Error(err))
			}
			break
		}
	}

	// Interrupted recorders exit non-zero; the audio read so far is still usable
	if err := cmd.Wait(); err != nil {
		c.logger.Debug("Recorder exited", zap.Error(err))
	}

	c.mu.Lock()
	if c.cmd == cmd {
		c.cmd = nil
	}
	c.mu.Unlock()

	c.emit(repositories.RecordingStopped{})
}

// Stop interrupts the recorder so it flushes and exits
func (c *CommandCapture) Stop() error {
	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()

	if cmd == nil {
		return ErrNotRecording
	}
	if err := cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to interrupt recorder: %w", err)
	}
	return nil
}

// Events implements repositories.AudioCapture
func (c *CommandCapture) Events() <-chan repositories.CaptureEvent {
	return c.events
}

// MimeType implements repositories.AudioCapture
func (c *CommandCapture) MimeType() string {
	return c.mimeType
}

// Release kills a running recorder and frees the capture
func (c *CommandCapture) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return nil
	}
	c.released = true
	c.acquired = false
	if c.cmd != nil {
		_ = c.cmd.Process.Kill()
	}
	close(c.done)
	return nil
}

func (c *CommandCapture) emit(event repositories.CaptureEvent) {
	select {
	case c.events <- event:
	case <-c.done:
	}
}
