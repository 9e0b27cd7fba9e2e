package api

import (
	"time"

	"github.com/giziai/digital-human/domain/entities"
)

// TokenRequest represents the request payload for surface authentication
type TokenRequest struct {
	ClientID  string `json:"client_id"`
	ClientKey string `json:"client_key"`
}

// TokenResponse represents the response payload for surface authentication
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ClientID  string    `json:"client_id"`
}

// ConversationResponse lists the recorded exchanges of one session, oldest first
type ConversationResponse struct {
	SessionUUID string               `json:"session_uuid"`
	Exchanges   []*entities.Exchange `json:"exchanges"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
