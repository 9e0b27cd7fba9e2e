package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/giziai/digital-human/adapters/capture"
	"github.com/giziai/digital-human/domain/repositories"
	"github.com/giziai/digital-human/internal/bubble"
	"github.com/giziai/digital-human/internal/chat"
	"github.com/giziai/digital-human/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	sendBufferSize = 256
)

var (
	ErrHubClosed      = errors.New("hub closed")
	errClientClosed   = errors.New("client closed")
	errSendBufferFull = errors.New("send buffer full")
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Access is gated by the surface token checked before the upgrade
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// HubConfig holds the per-connection settings
// - Conversation: request timeout for each surface's conversation
// - Surface: bubble timing for each surface
// - IdleTimeout: close surfaces without user activity for this long (0 disables)
// - Clock: time source for activity tracking (default: wall clock)
type HubConfig struct {
	Conversation usecase.ConversationConfig
	Surface      chat.Config
	IdleTimeout  time.Duration
	Clock        clock.Clock
}

// Hub maintains the set of active clients. Each client owns one chat surface.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	done     chan struct{}
	stopOnce sync.Once

	backend     repositories.ChatBackend
	transcripts repositories.TranscriptRepository
	config      HubConfig
	clock       clock.Clock

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub. transcripts may be nil.
func NewHub(
	backend repositories.ChatBackend,
	transcripts repositories.TranscriptRepository,
	config HubConfig,
	logger *zap.Logger,
) *Hub {
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Hub{
		clients:     make(map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
		backend:     backend,
		transcripts: transcripts,
		config:      config,
		clock:       clk,
		logger:      logger,
	}
}

// Run starts the hub's main loop. When ctx ends every client is closed.
func (h *Hub) Run(ctx context.Context) {
	if h.config.IdleTimeout > 0 {
		cleanup := NewIdleCleanup(h, h.config.IdleTimeout, h.logger)
		cleanup.Start()
		defer cleanup.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Client registered",
				zap.String("connID", client.id),
				zap.String("clientID", client.clientID),
				zap.Int("clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Client unregistered",
				zap.String("connID", client.id),
				zap.Int("clients", total))
		}
	}
}

func (h *Hub) shutdown() {
	h.stopOnce.Do(func() { close(h.done) })

	clients := h.Clients()
	h.mu.Lock()
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	h.logger.Info("Hub stopped", zap.Int("closedClients", len(clients)))
}

// Clients returns a snapshot of the registered clients
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// ClientCount returns the number of registered clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and its chat surface.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Closed when the client shuts down
	done      chan struct{}
	closeOnce sync.Once

	// Connection ID and the authenticated client ID
	id       string
	clientID string

	logger    *zap.Logger
	validator *MessageValidator

	ctx     context.Context
	cancel  context.CancelFunc
	capture *capture.StreamCapture
	surface *chat.Surface

	// Unix nanoseconds of the last inbound message
	lastSeen atomic.Int64

	wg sync.WaitGroup
}

func (h *Hub) newClient(conn *websocket.Conn, clientID string, logger *zap.Logger) *Client {
	id := uuid.NewString()
	logger = logger.With(zap.String("connID", id))
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan WriteData, sendBufferSize),
		done:      make(chan struct{}),
		id:        id,
		clientID:  clientID,
		logger:    logger,
		validator: NewMessageValidator(),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.touch()

	c.capture = capture.NewStreamCapture(c.sendCaptureCommand, "", logger)
	conv := usecase.NewConversation(h.backend, nil, h.transcripts, h.config.Conversation, logger)
	rec := usecase.NewRecorder(c.capture, conv.SendAudio, chat.BusyGate(conv), logger)
	c.surface = chat.NewSurface(conv, rec, h.config.Surface, logger)
	return c
}

// ID returns the connection ID
func (c *Client) ID() string {
	return c.id
}

// LastSeen returns when the client last sent a message
func (c *Client) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

func (c *Client) touch() {
	c.lastSeen.Store(c.hub.clock.Now().UnixNano())
}

// HandleWebSocket upgrades the request and attaches a chat surface for the
// authenticated clientID.
func HandleWebSocket(hub *Hub, c echo.Context, clientID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := hub.newClient(conn, clientID, logger)

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		client.close()
		return ErrHubClosed
	}

	client.surface.Start(client.ctx)
	views, cancelViews := client.surface.Subscribe()

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	client.wg.Add(1)
	go client.forward(views, cancelViews)
	go client.writePump()
	go client.readPump()

	return nil
}

// close stops the surface and signals the pumps. It is idempotent.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
		c.wg.Wait()
		c.surface.Close()
		c.logger.Info("Client closed", zap.String("clientID", c.clientID))
	})
}

// readPump pumps messages from the websocket connection to the surface.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
		c.touch()

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.capture.PushChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the surface to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// forward turns view snapshots into view, reply and bubble messages,
// sending each only when its part changed.
func (c *Client) forward(views <-chan chat.View, cancel func()) {
	defer c.wg.Done()
	defer cancel()

	var (
		started   bool
		lastState ViewState
		lastFrame bubble.Frame
		lastSeq   uint64
		hasReply  bool
	)

	for {
		select {
		case <-c.done:
			return
		case v, ok := <-views:
			if !ok {
				return
			}

			if state := viewState(v); !started || state != lastState {
				lastState = state
				c.sendJSON(CreateViewMessage(v))
			}
			if !started || v.Bubble != lastFrame {
				lastFrame = v.Bubble
				c.sendJSON(CreateBubbleMessage(v.Bubble))
			}
			switch {
			case v.Message != nil && (!hasReply || v.Message.Seq != lastSeq):
				lastSeq = v.Message.Seq
				hasReply = true
				c.sendJSON(CreateReplyMessage(v.Message))
			case v.Message == nil && hasReply:
				hasReply = false
				c.sendJSON(CreateReplyMessage(nil))
			}
			started = true
		}
	}
}

// processMessage dispatches a validated inbound message to the surface
func (c *Client) processMessage(message []byte) {
	msg, err := c.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid message", zap.Error(err))
		c.sendJSON(CreateErrorMessage(ErrorCodeInvalidMessage, "Invalid message", err.Error()))
		return
	}

	switch m := msg.(type) {
	case *PingMessage:
		c.sendJSON(CreatePongMessage(m.Data))

	case *SendTextMessage:
		if !c.surface.SendMessage(m.Text) {
			c.reject("message not accepted while a reply is loading or playing")
		}

	case *MessagePlayedMessage:
		if !c.surface.MessagePlayed(m.Seq) {
			c.logger.Debug("Ignoring stale playback ack", zap.Uint64("seq", m.Seq))
		}

	case *CaptureUnavailableMessage:
		c.capture.MarkUnavailable(m.Reason)

	case *BaseMessage:
		c.processControl(m.Type)
	}
}

func (c *Client) processControl(t MessageType) {
	switch t {
	case MessageTypeRecordToggle:
		if !c.surface.ToggleRecording() {
			c.reject("recording is not available right now")
		}
	case MessageTypeRecordStart:
		if !c.surface.StartRecording() {
			c.reject("recording cannot start right now")
		}
	case MessageTypeRecordStop:
		if !c.surface.StopRecording() {
			c.reject("no recording in progress")
		}
	case MessageTypeCaptureReady:
		c.capture.MarkReady()
		if err := c.surface.InitRecorder(c.ctx); err != nil {
			c.logger.Warn("Failed to initialise recorder", zap.Error(err))
			c.sendJSON(CreateErrorMessage(ErrorCodeCapture, "Microphone unavailable", err.Error()))
		}
	case MessageTypeCaptureStopped:
		c.capture.MarkStopped()
	}
}

func (c *Client) reject(details string) {
	c.sendJSON(CreateErrorMessage(ErrorCodeRejected, "Request rejected", details))
}

func (c *Client) sendCaptureCommand(cmd capture.Command) error {
	return c.sendJSON(CreateCaptureCommandMessage(MessageType(cmd)))
}

func (c *Client) sendJSON(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return c.enqueue(WriteData{Type: websocket.TextMessage, Payload: payload})
}

// enqueue never blocks. A full buffer means the peer stopped reading, so
// the client is closed.
func (c *Client) enqueue(data WriteData) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errClientClosed
	default:
		c.logger.Warn("Send buffer full, closing client")
		go c.close()
		return errSendBufferFull
	}
}
