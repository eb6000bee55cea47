package voice

import (
	"context"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/antoniostano/voicebot/internal/audio"
	"github.com/antoniostano/voicebot/internal/faults"
	"github.com/antoniostano/voicebot/internal/lang"
)

const (
	mockSampleRate = 16000
	// mockTextChunk carries the spoken text inside mock WAV output so the
	// mock recognizer can read it back.
	mockTextChunk = "vbtx"
	mockUtterance = "simulated voice input"
)

// MockProvider is a local fallback used when no speech backend is configured.
// Its audio is a short tone tagged with the source text.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Online() bool { return false }

func (p *MockProvider) Speak(ctx context.Context, text string, _ lang.Tag) (Speech, error) {
	if err := ctx.Err(); err != nil {
		return Speech{}, err
	}
	text = strings.TrimSpace(text)
	wav, err := audio.EncodeWAVPCM16LE(mockTone(utf8.RuneCountInString(text)), mockSampleRate)
	if err != nil {
		return Speech{}, err
	}
	wav, err = audio.InsertWAVChunk(wav, mockTextChunk, []byte(text))
	if err != nil {
		return Speech{}, err
	}
	return Speech{Audio: wav, Format: audio.FormatWAV, Provider: p.Name()}, nil
}

// Recognize reads back text embedded by Speak. Other non-silent audio yields
// a fixed utterance; silence is unintelligible.
func (p *MockProvider) Recognize(ctx context.Context, data []byte, format audio.Format, _ lang.Tag) (Recognition, error) {
	if err := ctx.Err(); err != nil {
		return Recognition{}, err
	}
	if format == audio.FormatWAV {
		if text, ok := audio.WAVChunk(data, mockTextChunk); ok {
			return Recognition{Text: string(text)}, nil
		}
		_, samples, err := audio.ParseWAV(data)
		if err != nil || silent(samples) {
			return Recognition{}, faults.Unintelligible(p.Name())
		}
	}
	return Recognition{Text: mockUtterance, Confidence: 0.7}, nil
}

// mockTone returns PCM16LE samples of a 440 Hz tone, 40ms per rune, capped at
// three seconds.
func mockTone(runes int) []byte {
	ms := runes * 40
	if ms < 200 {
		ms = 200
	}
	if ms > 3000 {
		ms = 3000
	}
	n := mockSampleRate * ms / 1000
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/mockSampleRate))
		pcm[2*i] = byte(v)
		pcm[2*i+1] = byte(uint16(v) >> 8)
	}
	return pcm
}

func silent(pcm []byte) bool {
	for _, b := range pcm {
		if b != 0 {
			return false
		}
	}
	return true
}
