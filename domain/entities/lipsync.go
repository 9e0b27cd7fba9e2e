package entities

import (
	"errors"
	"fmt"
)

// Viseme is a rhubarb mouth-shape tag (A-H, X for rest)
type Viseme string

const (
	VisemeA Viseme = "A"
	VisemeB Viseme = "B"
	VisemeC Viseme = "C"
	VisemeD Viseme = "D"
	VisemeE Viseme = "E"
	VisemeF Viseme = "F"
	VisemeG Viseme = "G"
	VisemeH Viseme = "H"
	VisemeX Viseme = "X"
)

const fallbackSoundFile = "fallback.wav"

// MouthCue is one viseme segment, times in seconds from audio start
type MouthCue struct {
	Start float64 `json:"start" bson:"start"`
	End   float64 `json:"end" bson:"end"`
	Value Viseme  `json:"value" bson:"value"`
}

// LipsyncMetadata describes the audio a cue list was computed from
type LipsyncMetadata struct {
	SoundFile string  `json:"soundFile,omitempty" bson:"sound_file,omitempty"`
	Duration  float64 `json:"duration,omitempty" bson:"duration,omitempty"`
}

// Lipsync drives mouth shapes while a reply's audio plays
type Lipsync struct {
	Metadata  LipsyncMetadata `json:"metadata" bson:"metadata"`
	MouthCues []MouthCue      `json:"mouthCues" bson:"mouth_cues"`
}

var (
	ErrCueInverted    = errors.New("mouth cue ends before it starts")
	ErrCueOutOfOrder  = errors.New("mouth cues overlap or go backwards")
	ErrCueNegativeEnd = errors.New("mouth cue has negative time")
)

// FallbackLipsync returns the fixed 3 second cue list used when a reply
// carries no usable lipsync data. Each call returns a fresh copy.
func FallbackLipsync() *Lipsync {
	return &Lipsync{
		Metadata: LipsyncMetadata{
			SoundFile: fallbackSoundFile,
			Duration:  3.0,
		},
		MouthCues: []MouthCue{
			{Start: 0.0, End: 0.5, Value: VisemeA},
			{Start: 0.5, End: 1.0, Value: VisemeB},
			{Start: 1.0, End: 1.5, Value: VisemeC},
			{Start: 1.5, End: 2.0, Value: VisemeA},
			{Start: 2.0, End: 2.5, Value: VisemeB},
			{Start: 2.5, End: 3.0, Value: VisemeX},
		},
	}
}

// Validate checks that cues are non-overlapping and non-decreasing in time
func (l *Lipsync) Validate() error {
	prevEnd := 0.0
	for i, cue := range l.MouthCues {
		if cue.Start < 0 || cue.End < 0 {
			return fmt.Errorf("cue %d: %w", i, ErrCueNegativeEnd)
		}
		if cue.End < cue.Start {
			return fmt.Errorf("cue %d: %w", i, ErrCueInverted)
		}
		if cue.Start < prevEnd {
			return fmt.Errorf("cue %d: %w", i, ErrCueOutOfOrder)
		}
		prevEnd = cue.End
	}
	return nil
}

// Duration is the playback length in seconds: the larger of the declared
// metadata duration and the end of the last cue.
func (l *Lipsync) Duration() float64 {
	d := l.Metadata.Duration
	if n := len(l.MouthCues); n > 0 && l.MouthCues[n-1].End > d {
		d = l.MouthCues[n-1].End
	}
	return d
}

// CueAt returns the cue active at t seconds
func (l *Lipsync) CueAt(t float64) (MouthCue, bool) {
	for _, cue := range l.MouthCues {
		if t >= cue.Start && t < cue.End {
			return cue, true
		}
		if cue.Start > t {
			break
		}
	}
	return MouthCue{}, false
}

// Clone returns a deep copy
func (l *Lipsync) Clone() *Lipsync {
	if l == nil {
		return nil
	}
	cp := *l
	cp.MouthCues = append([]MouthCue(nil), l.MouthCues...)
	return &cp
}
