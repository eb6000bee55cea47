// Package conversation runs text and voice turns through detection, scoring,
// response and synthesis, and keeps per-user memory and the interaction log.
package conversation

import (
	"github.com/antoniostano/voicebot/internal/audio"
	"github.com/antoniostano/voicebot/internal/lang"
	"github.com/antoniostano/voicebot/internal/sentiment"
)

// TextTurn is a typed customer message.
type TextTurn struct {
	UserID       string
	CustomerID   string
	Message      string
	LanguageHint string
}

// VoiceTurn is a recorded customer utterance.
type VoiceTurn struct {
	UserID       string
	CustomerID   string
	Audio        []byte
	LanguageHint string
	// PreferOnline overrides the configured synthesis order when set.
	PreferOnline *bool
}

// Result is the outcome of a completed turn.
type Result struct {
	TurnID      string
	Text        string
	Language    lang.Tag
	Intent      string
	Confidence  float64
	Sentiment   sentiment.Scores
	Suggestions []string

	Audio         []byte
	AudioFormat   audio.Format
	AudioFilename string
	AudioProvider string

	Transcript           string
	TranscriptLanguage   lang.Tag
	TranscriptConfidence float64
}

// Transcription is the outcome of a standalone speech-to-text request.
type Transcription struct {
	Text       string
	Language   lang.Tag
	Confidence float64
	Provider   string
	Sentiment  sentiment.Scores
}

// Speech is the outcome of a standalone text-to-speech request.
type Speech struct {
	Audio    []byte
	Format   audio.Format
	Filename string
	Language lang.Tag
	Provider string
}
