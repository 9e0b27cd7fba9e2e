package entities

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/giziai/digital-human/domain"
)

const (
	DefaultReplyText        = "Response tidak tersedia"
	DefaultFacialExpression = "default"
	DefaultAnimation        = "Sad"

	SadFacialExpression = "sad"
	SadAnimation        = "Sad"

	TextFailureText  = "Maaf, terjadi kesalahan saat memproses pesan. Silakan coba lagi."
	AudioFailureText = "Maaf, terjadi kesalahan saat memproses audio. Silakan coba lagi."
)

// ReplyMessage is one unit of the avatar's answer, ready for playback
type ReplyMessage struct {
	// Seq is stamped by the message queue and increases over the app lifetime
	Seq              uint64   `json:"seq"`
	Text             string   `json:"text"`
	FacialExpression string   `json:"facialExpression"`
	Animation        string   `json:"animation"`
	Audio            string   `json:"audio,omitempty"` // base64 encoded
	Lipsync          *Lipsync `json:"lipsync"`
}

// HasAudio reports whether the message carries audio to play
func (m *ReplyMessage) HasAudio() bool {
	return m.Audio != ""
}

// DecodeAudio returns the raw audio bytes
func (m *ReplyMessage) DecodeAudio() ([]byte, error) {
	return base64.StdEncoding.DecodeString(m.Audio)
}

// Clone returns a deep copy so observers cannot mutate queued messages
func (m *ReplyMessage) Clone() *ReplyMessage {
	if m == nil {
		return nil
	}
	cp := *m
	cp.Lipsync = m.Lipsync.Clone()
	return &cp
}

// NormalizeReply fills defaults for whatever the backend left out:
// placeholder text, default tags, fallback lipsync, and drops audio
// that is not valid base64.
func NormalizeReply(raw domain.RawReplyMessage) ReplyMessage {
	msg := ReplyMessage{
		Text:             raw.Text,
		FacialExpression: raw.FacialExpression,
		Animation:        raw.Animation,
	}

	if strings.TrimSpace(msg.Text) == "" {
		msg.Text = DefaultReplyText
	}
	if msg.FacialExpression == "" {
		msg.FacialExpression = DefaultFacialExpression
	}
	if msg.Animation == "" {
		msg.Animation = DefaultAnimation
	}

	if raw.Audio != nil && *raw.Audio != "" {
		if _, err := base64.StdEncoding.DecodeString(*raw.Audio); err == nil {
			msg.Audio = *raw.Audio
		}
	}

	msg.Lipsync = lipsyncFromRaw(raw.Lipsync)
	return msg
}

// FailureReply is the synthetic message queued when a request fails
func FailureReply(kind domain.RequestType) ReplyMessage {
	text := TextFailureText
	if kind == domain.RequestTypeAudio {
		text = AudioFailureText
	}
	return ReplyMessage{
		Text:             text,
		FacialExpression: SadFacialExpression,
		Animation:        SadAnimation,
		Lipsync:          FallbackLipsync(),
	}
}

func lipsyncFromRaw(data json.RawMessage) *Lipsync {
	var raw domain.RawLipsync
	if len(data) == 0 || json.Unmarshal(data, &raw) != nil || raw.MouthCues == nil {
		return FallbackLipsync()
	}

	l := &Lipsync{MouthCues: make([]MouthCue, 0, len(raw.MouthCues))}
	if v, ok := raw.Metadata["soundFile"].(string); ok {
		l.Metadata.SoundFile = v
	}
	if v, ok := raw.Metadata["duration"].(float64); ok {
		l.Metadata.Duration = v
	}
	for _, c := range raw.MouthCues {
		l.MouthCues = append(l.MouthCues, MouthCue{
			Start: c.Start,
			End:   c.End,
			Value: Viseme(c.Value),
		})
	}

	if err := l.Validate(); err != nil {
		return FallbackLipsync()
	}
	return l
}
