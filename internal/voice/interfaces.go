// Package voice turns audio into text and text into audio through ordered
// chains of speech providers.
package voice

import (
	"context"

	"github.com/antoniostano/voicebot/internal/audio"
	"github.com/antoniostano/voicebot/internal/lang"
)

// Recognition is one provider's transcript. Confidence is zero when the
// provider does not report one.
type Recognition struct {
	Text       string
	Confidence float64
}

// Recognizer transcribes a complete utterance.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, data []byte, format audio.Format, tag lang.Tag) (Recognition, error)
}

// Speech is synthesized audio ready to persist or stream.
type Speech struct {
	Audio    []byte
	Format   audio.Format
	Provider string
}

// Speaker synthesizes speech for one text. Online speakers need network access.
type Speaker interface {
	Name() string
	Online() bool
	Speak(ctx context.Context, text string, tag lang.Tag) (Speech, error)
}

// Transcript is the outcome of a successful transcription.
type Transcript struct {
	Text       string
	Confidence float64
	Provider   string
}
