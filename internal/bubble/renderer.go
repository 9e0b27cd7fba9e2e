// Package bubble renders reply text as a typewriter speech bubble
package bubble

import (
	"iter"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/giziai/digital-human/internal/notify"
	"github.com/giziai/digital-human/internal/schedule"
)

// DefaultInterval is the delay between revealed characters
const DefaultInterval = 50 * time.Millisecond

// Reveal yields the growing rune prefixes of text, ending with text itself.
// The empty string yields nothing.
func Reveal(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if text == "" {
			return
		}
		for i := range text {
			if i == 0 {
				continue
			}
			if !yield(text[:i]) {
				return
			}
		}
		yield(text)
	}
}

// Frame is what the bubble shows right now
type Frame struct {
	Text    string `json:"text"`
	Typing  bool   `json:"typing"`
	Visible bool   `json:"visible"`
}

// Config holds the optional Renderer settings
type Config struct {
	Clock    clock.Clock
	Interval time.Duration

	// OnComplete is called with the full text once a reveal finishes
	OnComplete func(text string)
}

// Renderer reveals one character per tick. Frames are published to
// subscribers, latest wins.
type Renderer struct {
	clk        clock.Clock
	interval   time.Duration
	onComplete func(string)

	mu     sync.Mutex
	target string
	frame  Frame
	gen    uint64
	task   *schedule.Task
	next   func() (string, bool)
	stop   func()
	closed bool
	frames *notify.Latest[Frame]
}

// NewRenderer creates a hidden bubble
func NewRenderer(config Config) *Renderer {
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}
	interval := config.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Renderer{
		clk:        clk,
		interval:   interval,
		onComplete: config.OnComplete,
		frames:     notify.NewLatest[Frame](),
	}
}

// Set updates the bubble. A visible non-empty text starts a reveal unless the
// same text is already revealing or revealed. Hidden or empty clears at once.
func (r *Renderer) Set(text string, visible bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	if !visible || text == "" {
		r.stopLocked()
		r.target = ""
		r.publishLocked(Frame{})
		return
	}

	if text == r.target && r.frame.Visible {
		return
	}

	r.stopLocked()
	r.target = text
	r.next, r.stop = iter.Pull(Reveal(text))
	r.publishLocked(Frame{Typing: true, Visible: true})

	gen := r.gen
	r.task = schedule.Every(r.clk, r.interval, func() bool {
		return r.tick(gen)
	})
}

func (r *Renderer) tick(gen uint64) bool {
	r.mu.Lock()
	if r.closed || gen != r.gen || r.next == nil {
		r.mu.Unlock()
		return false
	}

	prefix, ok := r.next()
	if !ok {
		prefix = r.target
	}

	complete := prefix == r.target
	r.publishLocked(Frame{Text: prefix, Typing: !complete, Visible: true})
	if complete {
		r.stopLocked()
	}
	target := r.target
	r.mu.Unlock()

	if complete && r.onComplete != nil {
		r.onComplete(target)
	}
	return !complete
}

// stopLocked cancels the running reveal; it keeps the last frame
func (r *Renderer) stopLocked() {
	r.gen++
	r.task.Cancel()
	r.task = nil
	if r.stop != nil {
		r.stop()
	}
	r.next, r.stop = nil, nil
}

func (r *Renderer) publishLocked(f Frame) {
	r.frame = f
	r.frames.Publish(f)
}

// Frame returns what is shown now
func (r *Renderer) Frame() Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frame
}

// Text returns the full text being revealed or shown
func (r *Renderer) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target
}

// Subscribe returns a latest-wins channel of frames
func (r *Renderer) Subscribe() (<-chan Frame, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames.Subscribe(r.frame)
}

// Close cancels any reveal. No frame is published after Close returns.
func (r *Renderer) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.stopLocked()
	r.mu.Unlock()

	r.frames.Close()
}
