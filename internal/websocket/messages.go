package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/giziai/digital-human/domain/entities"
	"github.com/giziai/digital-human/internal/bubble"
	"github.com/giziai/digital-human/internal/chat"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Inbound message types
const (
	MessageTypePing               MessageType = "ping"
	MessageTypeSendText           MessageType = "send_text"
	MessageTypeRecordToggle       MessageType = "record_toggle"
	MessageTypeRecordStart        MessageType = "record_start"
	MessageTypeRecordStop         MessageType = "record_stop"
	MessageTypeMessagePlayed      MessageType = "message_played"
	MessageTypeCaptureReady       MessageType = "capture_ready"
	MessageTypeCaptureUnavailable MessageType = "capture_unavailable"
	MessageTypeCaptureStopped     MessageType = "capture_stopped"
)

// Outbound message types
const (
	MessageTypePong         MessageType = "pong"
	MessageTypeView         MessageType = "view"
	MessageTypeReply        MessageType = "reply"
	MessageTypeBubble       MessageType = "bubble"
	MessageTypeCaptureStart MessageType = "capture_start"
	MessageTypeCaptureStop  MessageType = "capture_stop"
	MessageTypeError        MessageType = "error"
)

// Error codes sent in ErrorMessage
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeRejected       = "rejected"
	ErrorCodeCapture        = "capture_error"
)

// MaxTextLength caps send_text input, in runes
const MaxTextLength = 4000

var ErrUnsupportedType = errors.New("unsupported message type")

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

// SendTextMessage submits typed text
type SendTextMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// MessagePlayedMessage acknowledges playback of the reply with Seq
type MessagePlayedMessage struct {
	BaseMessage
	Seq uint64 `json:"seq"`
}

// CaptureUnavailableMessage reports that the browser microphone cannot be used
type CaptureUnavailableMessage struct {
	BaseMessage
	Reason string `json:"reason,omitempty"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ViewState is the chat view without the bubble and the current reply,
// which travel in their own messages.
type ViewState struct {
	Title         string `json:"title"`
	Status        string `json:"status"`
	Badge         string `json:"badge,omitempty"`
	SessionLabel  string `json:"session_label"`
	Loading       bool   `json:"loading"`
	Speaking      bool   `json:"speaking"`
	Recording     bool   `json:"recording"`
	Recorder      string `json:"recorder"`
	InputEnabled  bool   `json:"input_enabled"`
	RecordEnabled bool   `json:"record_enabled"`
}

// ViewMessage carries the chat view state
type ViewMessage struct {
	BaseMessage
	ViewState
}

// ReplyMessage hands the engine the message to play, or null when the queue is empty
type ReplyMessage struct {
	BaseMessage
	Message *entities.ReplyMessage `json:"message"`
}

// BubbleMessage carries the speech bubble frame
type BubbleMessage struct {
	BaseMessage
	bubble.Frame
}

// CaptureCommandMessage asks the browser to start or stop its microphone
type CaptureCommandMessage struct {
	BaseMessage
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage validates an incoming message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	if base.Timestamp == "" {
		base.Timestamp = time.Now().Format(time.RFC3339)
	}

	switch base.Type {
	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	case MessageTypeSendText:
		var msg SendTextMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid send_text message: %w", err)
		}
		if err := v.validateSendText(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypeMessagePlayed:
		var msg MessagePlayedMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid message_played message: %w", err)
		}
		return &msg, nil

	case MessageTypeCaptureUnavailable:
		var msg CaptureUnavailableMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid capture_unavailable message: %w", err)
		}
		return &msg, nil

	case MessageTypeRecordToggle, MessageTypeRecordStart, MessageTypeRecordStop,
		MessageTypeCaptureReady, MessageTypeCaptureStopped:
		return &base, nil

	case "":
		return nil, errors.New("type is required")

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, base.Type)
	}
}

func (v *MessageValidator) validateSendText(msg *SendTextMessage) error {
	if msg.Text == "" {
		return errors.New("text is required")
	}
	if utf8.RuneCountInString(msg.Text) > MaxTextLength {
		return fmt.Errorf("text must be at most %d characters", MaxTextLength)
	}
	return nil
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{
		Type:      t,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}

// CreateViewMessage strips the bubble and reply out of v
func CreateViewMessage(v chat.View) *ViewMessage {
	return &ViewMessage{
		BaseMessage: newBase(MessageTypeView),
		ViewState:   viewState(v),
	}
}

// CreateReplyMessage wraps the current reply, which may be nil
func CreateReplyMessage(msg *entities.ReplyMessage) *ReplyMessage {
	return &ReplyMessage{
		BaseMessage: newBase(MessageTypeReply),
		Message:     msg,
	}
}

// CreateBubbleMessage wraps a bubble frame
func CreateBubbleMessage(f bubble.Frame) *BubbleMessage {
	return &BubbleMessage{
		BaseMessage: newBase(MessageTypeBubble),
		Frame:       f,
	}
}

// CreateCaptureCommandMessage creates a capture_start or capture_stop message
func CreateCaptureCommandMessage(t MessageType) *CaptureCommandMessage {
	return &CaptureCommandMessage{BaseMessage: newBase(t)}
}

func viewState(v chat.View) ViewState {
	return ViewState{
		Title:         v.Title,
		Status:        v.Status,
		Badge:         v.Badge,
		SessionLabel:  v.SessionLabel,
		Loading:       v.Loading,
		Speaking:      v.Speaking,
		Recording:     v.Recording,
		Recorder:      v.Recorder,
		InputEnabled:  v.InputEnabled,
		RecordEnabled: v.RecordEnabled,
	}
}
