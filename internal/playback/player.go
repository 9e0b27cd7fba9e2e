// Package playback walks a reply's lipsync cues on a clock for surfaces that
// have no 3D engine of their own.
package playback

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/giziai/digital-human/domain/entities"
	"github.com/giziai/digital-human/internal/notify"
	"github.com/giziai/digital-human/internal/schedule"
)

// DefaultFrameInterval samples cues at 25 fps
const DefaultFrameInterval = 40 * time.Millisecond

// Frame is the avatar pose at one instant
type Frame struct {
	Seq        uint64          `json:"seq"`
	Viseme     entities.Viseme `json:"viseme"`
	Animation  string          `json:"animation"`
	Expression string          `json:"expression"`
	Speaking   bool            `json:"speaking"`
}

// Config holds the optional Player settings
type Config struct {
	Clock         clock.Clock
	FrameInterval time.Duration

	// OnPlayed is called with the message sequence once playback finishes
	OnPlayed func(seq uint64)
}

// Player plays one message at a time
type Player struct {
	clk      clock.Clock
	interval time.Duration
	onPlayed func(uint64)

	mu     sync.Mutex
	gen    uint64
	task   *schedule.Task
	frame  Frame
	closed bool
	frames *notify.Latest[Frame]
}

// NewPlayer creates an idle player
func NewPlayer(config Config) *Player {
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}
	interval := config.FrameInterval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &Player{
		clk:      clk,
		interval: interval,
		onPlayed: config.OnPlayed,
		frame:    Frame{Viseme: entities.VisemeX},
		frames:   notify.NewLatest[Frame](),
	}
}

// Play starts msg from the beginning, replacing whatever was playing
func (p *Player) Play(msg *entities.ReplyMessage) {
	if msg == nil {
		p.Stop()
		return
	}

	lipsync := msg.Lipsync
	if lipsync == nil {
		lipsync = entities.FallbackLipsync()
	}
	lipsync = lipsync.Clone()
	duration := time.Duration(lipsync.Duration() * float64(time.Second))

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.cancelLocked()
	start := p.clk.Now()
	base := Frame{
		Seq:        msg.Seq,
		Animation:  msg.Animation,
		Expression: msg.FacialExpression,
		Speaking:   true,
	}
	p.publishLocked(poseAt(base, lipsync, 0))

	gen := p.gen
	p.task = schedule.Every(p.clk, p.interval, func() bool {
		return p.tick(gen, base, lipsync, start, duration)
	})
}

func (p *Player) tick(gen uint64, base Frame, lipsync *entities.Lipsync, start time.Time, duration time.Duration) bool {
	elapsed := p.clk.Since(start)

	p.mu.Lock()
	if p.closed || gen != p.gen {
		p.mu.Unlock()
		return false
	}

	if elapsed < duration {
		if f := poseAt(base, lipsync, elapsed.Seconds()); f != p.frame {
			p.publishLocked(f)
		}
		p.mu.Unlock()
		return true
	}

	finished := base
	finished.Viseme = entities.VisemeX
	finished.Speaking = false
	p.publishLocked(finished)
	p.task = nil
	p.mu.Unlock()

	if p.onPlayed != nil {
		p.onPlayed(base.Seq)
	}
	return false
}

func poseAt(base Frame, lipsync *entities.Lipsync, t float64) Frame {
	base.Viseme = entities.VisemeX
	if cue, ok := lipsync.CueAt(t); ok {
		base.Viseme = cue.Value
	}
	return base
}

// Stop abandons the current message without reporting it played
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.cancelLocked()
	p.publishLocked(Frame{Viseme: entities.VisemeX})
}

// Frame returns the current pose
func (p *Player) Frame() Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frame
}

// Subscribe returns a latest-wins channel of poses
func (p *Player) Subscribe() (<-chan Frame, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames.Subscribe(p.frame)
}

// Close stops playback and closes subscriptions
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cancelLocked()
	p.mu.Unlock()

	p.frames.Close()
}

func (p *Player) cancelLocked() {
	p.gen++
	p.task.Cancel()
	p.task = nil
}

func (p *Player) publishLocked(f Frame) {
	p.frame = f
	p.frames.Publish(f)
}
