package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/giziai/digital-human/domain"
	"github.com/giziai/digital-human/domain/entities"
	"github.com/giziai/digital-human/domain/repositories"
	"github.com/giziai/digital-human/internal/notify"
)

const (
	DefaultRequestTimeout = 60 * time.Second
	transcriptTimeout     = 5 * time.Second
)

var (
	ErrBusy   = errors.New("a request is already in flight")
	ErrClosed = errors.New("conversation closed")
)

// State is a snapshot of the conversation as seen by surfaces
type State struct {
	SessionID string
	Loading   bool
	// Current is a copy of the queue head, nil when the queue is empty
	Current *entities.ReplyMessage
	Queued  int
}

// ConversationConfig holds the optional Conversation settings
// - RequestTimeout: per request timeout (default: 60s)
// - Clock: time source for transcript timestamps (default: wall clock)
type ConversationConfig struct {
	RequestTimeout time.Duration
	Clock          clock.Clock
}

// Conversation sends user input to the chat backend and queues the replies.
// At most one request is in flight at a time.
type Conversation struct {
	backend     repositories.ChatBackend
	transcripts repositories.TranscriptRepository
	session     *entities.Session
	timeout     time.Duration
	clock       clock.Clock
	logger      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	queue   MessageQueue
	loading bool
	idle    chan struct{} // closed when the in-flight request resolves
	closed  bool
	states  *notify.Latest[State]
}

// NewConversation creates a conversation for one application lifetime.
// A nil session starts a fresh one; transcripts may be nil.
func NewConversation(
	backend repositories.ChatBackend,
	session *entities.Session,
	transcripts repositories.TranscriptRepository,
	config ConversationConfig,
	logger *zap.Logger,
) *Conversation {
	if session == nil {
		session = entities.NewSession("")
	}
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Conversation{
		backend:     backend,
		transcripts: transcripts,
		session:     session,
		timeout:     timeout,
		clock:       clk,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		states:      notify.NewLatest[State](),
	}
}

// SendText submits trimmed non-empty text. It reports whether a request was issued.
func (c *Conversation) SendText(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	err := c.submit(domain.ChatRequest{Message: text, Type: domain.RequestTypeText}, len(text))
	if err != nil {
		c.logger.Debug("Text not sent", zap.Error(err))
		return false
	}
	return true
}

// SendAudio submits a recorded blob. It reports whether a request was issued.
func (c *Conversation) SendAudio(blob []byte) bool {
	if len(blob) == 0 {
		return false
	}

	req := domain.ChatRequest{
		AudioData: base64.StdEncoding.EncodeToString(blob),
		Type:      domain.RequestTypeAudio,
	}
	if err := c.submit(req, len(blob)); err != nil {
		c.logger.Debug("Audio not sent", zap.Error(err))
		return false
	}
	return true
}

func (c *Conversation) submit(req domain.ChatRequest, size int) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.loading {
		c.mu.Unlock()
		return ErrBusy
	}
	c.loading = true
	c.idle = make(chan struct{})
	req.SessionUUID = c.session.Ref()
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Info("Sending request",
		zap.String("sessionID", *req.SessionUUID),
		zap.String("type", string(req.Type)),
		zap.Int("inputSize", size))

	go c.run(req)
	return nil
}

func (c *Conversation) run(req domain.ChatRequest) {
	started := c.clock.Now()

	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	resp, err := c.backend.Chat(ctx, req)
	cancel()

	var replies []entities.ReplyMessage
	failed := err != nil
	if failed {
		c.logger.Error("Chat request failed", zap.String("type", string(req.Type)), zap.Error(err))
		replies = []entities.ReplyMessage{entities.FailureReply(req.Type)}
	} else {
		if c.session.Adopt(resp.SessionUUID) {
			c.logger.Info("Session updated by backend", zap.String("newSessionID", resp.SessionUUID))
		}
		replies = make([]entities.ReplyMessage, 0, len(resp.Messages))
		for _, raw := range resp.Messages {
			replies = append(replies, entities.NormalizeReply(raw))
		}
		c.logger.Info("Replies received", zap.Int("count", len(replies)))
	}

	// Replies become visible in the same state change that clears loading
	c.mu.Lock()
	c.queue.Push(replies...)
	c.loading = false
	close(c.idle)
	c.publishLocked()
	c.mu.Unlock()

	c.record(req, replies, failed, started)
}

func (c *Conversation) record(req domain.ChatRequest, replies []entities.ReplyMessage, failed bool, started time.Time) {
	if c.transcripts == nil {
		return
	}

	exchange := &entities.Exchange{
		SessionID:   c.session.ID(),
		Kind:        req.Type,
		Input:       req.Message,
		Failed:      failed,
		StartedAt:   started,
		CompletedAt: c.clock.Now(),
	}
	if req.Type == domain.RequestTypeAudio {
		exchange.AudioBytes = base64.StdEncoding.DecodedLen(len(req.AudioData))
	}
	for _, r := range replies {
		exchange.Replies = append(exchange.Replies, r.Text)
	}

	ctx, cancel := context.WithTimeout(context.Background(), transcriptTimeout)
	defer cancel()
	if err := c.transcripts.Append(ctx, exchange); err != nil {
		c.logger.Warn("Failed to store exchange", zap.Error(err))
	}
}

// Current returns a copy of the message at the head of the queue
func (c *Conversation) Current() *entities.ReplyMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.queue.Current(); ok {
		return m.Clone()
	}
	return nil
}

// OnPlayed removes the current message. It reports false on an empty queue.
func (c *Conversation) OnPlayed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.queue.Pop()
	if !ok {
		return false
	}
	c.logger.Debug("Message played", zap.Uint64("seq", m.Seq))
	c.publishLocked()
	return true
}

// OnPlayedSeq removes the current message only if its sequence is seq.
// Zero matches any head. Stale acknowledgements report false.
func (c *Conversation) OnPlayedSeq(seq uint64) bool {
	if seq == 0 {
		return c.OnPlayed()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	head, ok := c.queue.Current()
	if !ok || head.Seq != seq {
		c.logger.Debug("Ignoring stale played acknowledgement", zap.Uint64("seq", seq))
		return false
	}
	c.queue.Pop()
	c.logger.Debug("Message played", zap.Uint64("seq", seq))
	c.publishLocked()
	return true
}

// Loading reports whether a request is in flight
func (c *Conversation) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Session returns the session identity shared with the backend
func (c *Conversation) Session() *entities.Session {
	return c.session
}

// State returns the current snapshot
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Subscribe returns a channel of state snapshots. Only the latest snapshot is
// kept for a slow reader. The channel is closed by cancel or Close.
func (c *Conversation) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states.Subscribe(c.stateLocked())
}

// Wait blocks until no request is in flight
func (c *Conversation) Wait(ctx context.Context) error {
	c.mu.Lock()
	if !c.loading {
		c.mu.Unlock()
		return nil
	}
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels an in-flight request, waits for its outcome to be queued and
// closes all subscriptions.
func (c *Conversation) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	_ = c.Wait(context.Background())

	c.states.Close()
}

func (c *Conversation) stateLocked() State {
	st := State{
		SessionID: c.session.ID(),
		Loading:   c.loading,
		Queued:    c.queue.Len(),
	}
	if m, ok := c.queue.Current(); ok {
		st.Current = m.Clone()
	}
	return st
}

func (c *Conversation) publishLocked() {
	c.states.Publish(c.stateLocked())
}
