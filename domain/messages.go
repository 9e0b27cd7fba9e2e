package domain

import "encoding/json"

// RequestType discriminates the payload of a ChatRequest
type RequestType string

const (
	RequestTypeText  RequestType = "text"
	RequestTypeAudio RequestType = "audio"
)

// ChatRequest is the body posted to the digital-human chat endpoint
type ChatRequest struct {
	Message     string      `json:"message,omitempty"`
	AudioData   string      `json:"audio_data,omitempty"` // base64 encoded
	Type        RequestType `json:"type"`
	SessionUUID *string     `json:"session_uuid"`
}

// ChatResponse is the body returned by the chat endpoint
type ChatResponse struct {
	SessionUUID string            `json:"session_uuid"`
	Messages    []RawReplyMessage `json:"messages"`
}

// RawReplyMessage is a reply message as the backend sent it.
// Any field may be missing or of the wrong type; see entities.NormalizeReply.
type RawReplyMessage struct {
	Text             string          `json:"text"`
	FacialExpression string          `json:"facialExpression"`
	Animation        string          `json:"animation"`
	Audio            *string         `json:"audio,omitempty"` // base64 encoded
	Lipsync          json.RawMessage `json:"lipsync,omitempty"`
}

// UnmarshalJSON keeps every field that decodes. A field of the wrong type is
// left empty, and a message that is not an object decodes as empty, so one
// bad field never costs the rest of the response.
func (m *RawReplyMessage) UnmarshalJSON(data []byte) error {
	*m = RawReplyMessage{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}

	m.Text, _ = stringField(fields["text"])
	m.FacialExpression, _ = stringField(fields["facialExpression"])
	m.Animation, _ = stringField(fields["animation"])
	if audio, ok := stringField(fields["audio"]); ok {
		m.Audio = &audio
	}
	if lipsync, ok := fields["lipsync"]; ok && string(lipsync) != "null" {
		m.Lipsync = lipsync
	}
	return nil
}

func stringField(raw json.RawMessage) (string, bool) {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	return s, true
}

// RawLipsync mirrors the rhubarb JSON export embedded in a reply.
// It is decoded from RawReplyMessage.Lipsync by entities.NormalizeReply.
type RawLipsync struct {
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	MouthCues []RawMouthCue          `json:"mouthCues"`
}

// RawMouthCue is a single cue as sent on the wire
type RawMouthCue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Value string  `json:"value"`
}
