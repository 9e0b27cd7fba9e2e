package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/giziai/digital-human/domain/entities"
	"github.com/giziai/digital-human/internal/api"
)

const defaultChunkSize = 1024

var errRejected = errors.New("server rejected the request")

// envelope is the union of the outbound frames the probe looks at
type envelope struct {
	Type          string          `json:"type"`
	Message       json.RawMessage `json:"message"`
	RecordEnabled bool            `json:"record_enabled"`
	ErrorCode     string          `json:"error_code"`
}

// Probe authenticates against a running server and drives one exchange
// over the websocket: a text message or a recorded audio file.
type Probe struct {
	opts   options
	client *http.Client
	out    io.Writer
	logger *zap.Logger
}

// NewProbe creates a probe that prints replies to out
func NewProbe(opts options, out io.Writer, logger *zap.Logger) *Probe {
	return &Probe{
		opts:   opts,
		client: &http.Client{Timeout: 10 * time.Second},
		out:    out,
		logger: logger,
	}
}

// Authenticate exchanges the client credentials for a surface token
func (p *Probe) Authenticate(ctx context.Context) (string, error) {
	body, err := json.Marshal(api.TokenRequest{ClientID: p.opts.clientID, ClientKey: p.opts.clientKey})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.opts.server, "/")+"/api/v1/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr api.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return "", fmt.Errorf("authentication failed with status %d: %s", resp.StatusCode, apiErr.Error)
	}

	var token api.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	return token.Token, nil
}

// Dial opens the websocket with token as a bearer header
func (p *Probe) Dial(ctx context.Context, token string) (*websocket.Conn, error) {
	u, err := url.Parse(p.opts.server)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket connection failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket connection failed: %w", err)
	}
	return conn, nil
}

// Run performs the whole exchange and returns once every reply was played
func (p *Probe) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.timeout)
	defer cancel()

	token, err := p.Authenticate(ctx)
	if err != nil {
		return err
	}
	p.logger.Info("Authenticated", zap.String("clientID", p.opts.clientID))

	conn, err := p.Dial(ctx, token)
	if err != nil {
		return err
	}
	defer conn.Close()

	frames := make(chan envelope, 16)
	readErr := make(chan error, 1)
	go p.readLoop(ctx, conn, frames, readErr)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if p.opts.audioFile != "" {
		err = p.sendAudio(ctx, conn, frames, readErr)
	} else {
		err = p.send(conn, map[string]interface{}{"type": "send_text", "text": p.opts.text})
	}
	if err != nil {
		return err
	}

	return p.playReplies(ctx, conn, frames, readErr)
}

func (p *Probe) readLoop(ctx context.Context, conn *websocket.Conn, frames chan<- envelope, readErr chan<- error) {
	defer close(frames)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			p.logger.Warn("Skipping undecodable frame", zap.Error(err))
			continue
		}
		p.logger.Debug("Received frame", zap.String("type", env.Type))
		select {
		case frames <- env:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Probe) send(conn *websocket.Conn, msg map[string]interface{}) error {
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	msg["message_id"] = uuid.NewString()
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send %v: %w", msg["type"], err)
	}
	return nil
}

// await returns the first frame accepted by match. Error frames fail the wait.
func (p *Probe) await(ctx context.Context, frames <-chan envelope, readErr <-chan error, match func(envelope) bool) (envelope, error) {
	for {
		select {
		case <-ctx.Done():
			return envelope{}, ctx.Err()
		case env, ok := <-frames:
			if !ok {
				select {
				case err := <-readErr:
					if ctx.Err() == nil {
						return envelope{}, fmt.Errorf("connection lost: %w", err)
					}
				default:
				}
				return envelope{}, ctx.Err()
			}
			if env.Type == "error" {
				var text string
				_ = json.Unmarshal(env.Message, &text)
				if env.ErrorCode == "rejected" {
					return envelope{}, fmt.Errorf("%w: %s", errRejected, text)
				}
				p.logger.Warn("Server error", zap.String("errorCode", env.ErrorCode), zap.String("message", text))
				continue
			}
			if match(env) {
				return env, nil
			}
		}
	}
}

// sendAudio plays the browser capture role: it reports a ready
// microphone, streams the file between capture_start and capture_stop and
// confirms the stop.
func (p *Probe) sendAudio(ctx context.Context, conn *websocket.Conn, frames <-chan envelope, readErr <-chan error) error {
	data, err := os.ReadFile(p.opts.audioFile)
	if err != nil {
		return fmt.Errorf("failed to read audio file: %w", err)
	}

	if err := p.send(conn, map[string]interface{}{"type": "capture_ready"}); err != nil {
		return err
	}
	if _, err := p.await(ctx, frames, readErr, func(e envelope) bool {
		return e.Type == "view" && e.RecordEnabled
	}); err != nil {
		return err
	}

	if err := p.send(conn, map[string]interface{}{"type": "record_start"}); err != nil {
		return err
	}
	if _, err := p.await(ctx, frames, readErr, func(e envelope) bool { return e.Type == "capture_start" }); err != nil {
		return err
	}

	chunkSize := p.opts.chunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	for start := 0; start < len(data); start += chunkSize {
		end := min(start+chunkSize, len(data))
		if err := conn.WriteMessage(websocket.BinaryMessage, data[start:end]); err != nil {
			return fmt.Errorf("failed to send audio chunk: %w", err)
		}
	}
	p.logger.Info("Streamed audio", zap.String("file", p.opts.audioFile), zap.Int("bytes", len(data)))

	if err := p.send(conn, map[string]interface{}{"type": "record_stop"}); err != nil {
		return err
	}
	if _, err := p.await(ctx, frames, readErr, func(e envelope) bool { return e.Type == "capture_stop" }); err != nil {
		return err
	}
	return p.send(conn, map[string]interface{}{"type": "capture_stopped"})
}

// playReplies acknowledges each reply at the head of the queue until the
// queue drains
func (p *Probe) playReplies(ctx context.Context, conn *websocket.Conn, frames <-chan envelope, readErr <-chan error) error {
	played := 0
	for {
		env, err := p.await(ctx, frames, readErr, func(e envelope) bool { return e.Type == "reply" })
		if err != nil {
			return err
		}

		var msg *entities.ReplyMessage
		if err := json.Unmarshal(env.Message, &msg); err != nil {
			return fmt.Errorf("failed to decode reply: %w", err)
		}
		if msg == nil {
			if played > 0 {
				return nil
			}
			continue
		}

		fmt.Fprintf(p.out, "[%d] (%s, %s) %s\n", msg.Seq, msg.FacialExpression, msg.Animation, msg.Text)
		if err := p.saveAudio(msg); err != nil {
			p.logger.Warn("Failed to save reply audio", zap.Uint64("seq", msg.Seq), zap.Error(err))
		}

		if err := p.send(conn, map[string]interface{}{"type": "message_played", "seq": msg.Seq}); err != nil {
			return err
		}
		played++
	}
}

func (p *Probe) saveAudio(msg *entities.ReplyMessage) error {
	if p.opts.outDir == "" || !msg.HasAudio() {
		return nil
	}
	audio, err := msg.DecodeAudio()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(p.opts.outDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(p.opts.outDir, fmt.Sprintf("%d.mp3", msg.Seq)), audio, 0o644)
}
