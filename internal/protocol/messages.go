// Package protocol holds the JSON shapes of the voicebot HTTP API.
package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/antoniostano/voicebot/internal/sentiment"
)

var ErrEmptyBody = errors.New("empty body")

// ChatRequest is a typed customer message.
type ChatRequest struct {
	Message    string `json:"message"`
	UserID     string `json:"user_id,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
	Language   string `json:"language,omitempty"`
}

// ChatResponse answers a text turn.
type ChatResponse struct {
	Response    string            `json:"response"`
	Language    string            `json:"language"`
	Intent      string            `json:"intent,omitempty"`
	Confidence  float64           `json:"confidence,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
	Sentiment   *sentiment.Scores `json:"sentiment,omitempty"`
	TurnID      string            `json:"turn_id,omitempty"`
}

// AudioRequest carries base64 audio for clients that cannot send multipart.
type AudioRequest struct {
	AudioBase64  string `json:"audio_base64"`
	UserID       string `json:"user_id,omitempty"`
	CustomerID   string `json:"customer_id,omitempty"`
	Language     string `json:"language,omitempty"`
	PreferOnline *bool  `json:"prefer_online,omitempty"`
}

// Audio decodes AudioBase64, accepting standard and URL alphabets and an
// optional data URI prefix.
func (r AudioRequest) Audio() ([]byte, error) {
	raw := strings.TrimSpace(r.AudioBase64)
	if i := strings.Index(raw, ";base64,"); i >= 0 && strings.HasPrefix(raw, "data:") {
		raw = raw[i+len(";base64,"):]
	}
	if raw == "" {
		return nil, errors.New("audio_base64 is required")
	}
	if data, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return data, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
	if err != nil {
		return nil, errors.Wrap(err, "decode audio_base64")
	}
	return data, nil
}

// VoiceInput describes what the customer said.
type VoiceInput struct {
	Text       string           `json:"text"`
	Language   string           `json:"language"`
	Confidence float64          `json:"confidence"`
	Sentiment  sentiment.Scores `json:"sentiment"`
}

// VoiceOutput is the bot's spoken answer.
type VoiceOutput struct {
	Text          string   `json:"text"`
	Language      string   `json:"language"`
	Intent        string   `json:"intent"`
	Suggestions   []string `json:"suggestions"`
	AudioBase64   string   `json:"audio_base64,omitempty"`
	AudioFilename string   `json:"audio_filename,omitempty"`
	AudioFormat   string   `json:"audio_format,omitempty"`
}

// VoiceResponse answers a voice turn.
type VoiceResponse struct {
	Input    VoiceInput  `json:"input"`
	Response VoiceOutput `json:"response"`
	TurnID   string      `json:"turn_id,omitempty"`
}

// TranscribeResponse answers a standalone speech-to-text request.
type TranscribeResponse struct {
	Text       string           `json:"text"`
	Language   string           `json:"language"`
	Confidence float64          `json:"confidence"`
	Provider   string           `json:"provider,omitempty"`
	Sentiment  sentiment.Scores `json:"sentiment"`
}

// SpeakRequest asks for speech. The audio is returned as the response body.
type SpeakRequest struct {
	Text         string `json:"text"`
	Language     string `json:"language,omitempty"`
	CustomerID   string `json:"customer_id,omitempty"`
	PreferOnline *bool  `json:"prefer_online,omitempty"`
}

// SentimentRequest asks for a standalone sentiment score.
type SentimentRequest struct {
	Text       string `json:"text"`
	CustomerID string `json:"customer_id,omitempty"`
}

// SentimentResponse answers a SentimentRequest.
type SentimentResponse struct {
	Text      string           `json:"text"`
	Sentiment sentiment.Scores `json:"sentiment"`
}

// InteractionView is one logged interaction.
type InteractionView struct {
	ID             int64     `json:"id"`
	CustomerID     string    `json:"customer_id,omitempty"`
	Type           string    `json:"interaction_type"`
	Content        string    `json:"content"`
	Language       string    `json:"language,omitempty"`
	SentimentScore *float64  `json:"sentiment_score,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// HistoryResponse lists a customer's recent interactions, most recent first.
type HistoryResponse struct {
	CustomerID   string            `json:"customer_id,omitempty"`
	Interactions []InteractionView `json:"interactions"`
}

// LanguageView is one supported language.
type LanguageView struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	NativeName string `json:"native_name"`
}

// LanguagesResponse lists the supported languages.
type LanguagesResponse struct {
	Default   string         `json:"default"`
	Languages []LanguageView `json:"languages"`
}

// HealthResponse reports liveness and dependency status.
type HealthResponse struct {
	Status       string            `json:"status"`
	Time         time.Time         `json:"time"`
	Store        string            `json:"store,omitempty"`
	Memory       string            `json:"memory,omitempty"`
	Transcribers []string          `json:"transcribers,omitempty"`
	Synthesizers []string          `json:"synthesizers,omitempty"`
	Checks       map[string]string `json:"checks,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Decode reads one JSON object from raw into out and rejects unknown fields.
func Decode(raw []byte, out any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ErrEmptyBody
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return errors.Wrap(err, "decode request")
	}
	if dec.More() {
		return errors.New("decode request: trailing data after JSON object")
	}
	return nil
}

// ParseChatRequest decodes and validates a ChatRequest.
func ParseChatRequest(raw []byte) (ChatRequest, error) {
	var req ChatRequest
	if err := Decode(raw, &req); err != nil {
		return ChatRequest{}, err
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return ChatRequest{}, errors.New("message is required")
	}
	return req, nil
}

// ParseSpeakRequest decodes and validates a SpeakRequest.
func ParseSpeakRequest(raw []byte) (SpeakRequest, error) {
	var req SpeakRequest
	if err := Decode(raw, &req); err != nil {
		return SpeakRequest{}, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return SpeakRequest{}, errors.New("text is required")
	}
	return req, nil
}

// ParseSentimentRequest decodes and validates a SentimentRequest.
func ParseSentimentRequest(raw []byte) (SentimentRequest, error) {
	var req SentimentRequest
	if err := Decode(raw, &req); err != nil {
		return SentimentRequest{}, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return SentimentRequest{}, errors.New("text is required")
	}
	return req, nil
}
