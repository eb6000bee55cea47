package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/antoniostano/voicebot/internal/audio"
	"github.com/antoniostano/voicebot/internal/lang"
	"github.com/antoniostano/voicebot/internal/reliability"
)

type ElevenLabsConfig struct {
	APIKey       string
	BaseURL      string
	WSBaseURL    string
	VoiceID      string
	TTSModelID   string
	STTModelID   string
	OutputFormat string
	Stability    float64
	Similarity   float64
}

// ElevenLabsProvider speaks through the stream-input websocket and
// transcribes through the Scribe REST endpoint.
type ElevenLabsProvider struct {
	cfg    ElevenLabsConfig
	client *resty.Client
	dialer *websocket.Dialer
}

func NewElevenLabsProvider(cfg ElevenLabsConfig) *ElevenLabsProvider {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.STTModelID) == "" {
		cfg.STTModelID = "scribe_v1"
	}
	if strings.TrimSpace(cfg.TTSModelID) == "" {
		cfg.TTSModelID = "eleven_multilingual_v2"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	cfg.Stability = clampUnit(cfg.Stability, 0.42)
	cfg.Similarity = clampUnit(cfg.Similarity, 0.85)

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("xi-api-key", cfg.APIKey)
	return &ElevenLabsProvider{cfg: cfg, client: client, dialer: websocket.DefaultDialer}
}

func (p *ElevenLabsProvider) Name() string { return "elevenlabs" }

func (p *ElevenLabsProvider) Online() bool { return true }

type scribeResponse struct {
	LanguageCode        string  `json:"language_code"`
	LanguageProbability float64 `json:"language_probability"`
	Text                string  `json:"text"`
}

// Recognize posts the whole clip to Scribe. Scribe reports no transcript
// confidence, so Confidence is left unset.
func (p *ElevenLabsProvider) Recognize(ctx context.Context, data []byte, format audio.Format, tag lang.Tag) (Recognition, error) {
	var out scribeResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetFileReader("file", "audio"+format.Extension(), bytes.NewReader(data)).
		SetFormData(map[string]string{
			"model_id":      p.cfg.STTModelID,
			"language_code": tag.Base(),
		}).
		SetResult(&out).
		Post("/v1/speech-to-text")
	if err != nil {
		return Recognition{}, reliability.RecognitionFromTransport(p.Name(), err)
	}
	if resp.IsError() {
		return Recognition{}, reliability.RecognitionFromStatus(p.Name(), resp.StatusCode(), resp.String())
	}
	return Recognition{Text: strings.TrimSpace(out.Text)}, nil
}

// Speak streams text over one websocket session and collects the audio.
func (p *ElevenLabsProvider) Speak(ctx context.Context, text string, _ lang.Tag) (Speech, error) {
	if strings.TrimSpace(p.cfg.VoiceID) == "" {
		return Speech{}, errors.New("elevenlabs voice_id is required")
	}
	u, err := url.Parse(strings.TrimRight(p.cfg.WSBaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(p.cfg.VoiceID) + "/stream-input")
	if err != nil {
		return Speech{}, err
	}
	q := u.Query()
	q.Set("model_id", p.cfg.TTSModelID)
	q.Set("output_format", p.cfg.OutputFormat)
	q.Set("auto_mode", "true")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", p.cfg.APIKey)

	conn, _, err := p.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return Speech{}, errors.Wrap(err, "dial tts websocket")
	}
	s := &elevenTTSStream{conn: conn}
	defer s.Close()
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	// Prime the stream as documented for TTS websocket flows.
	if err := s.writeJSON(map[string]any{
		"text": " ",
		"voice_settings": map[string]any{
			"stability":        p.cfg.Stability,
			"similarity_boost": p.cfg.Similarity,
		},
	}); err != nil {
		return Speech{}, errors.Wrap(err, "prime tts stream")
	}
	if err := s.writeJSON(map[string]any{"text": text + " ", "try_trigger_generation": true}); err != nil {
		return Speech{}, errors.Wrap(err, "send tts text")
	}
	if err := s.writeJSON(map[string]any{"text": ""}); err != nil {
		return Speech{}, errors.Wrap(err, "close tts input")
	}

	pcm, err := s.collect()
	if ctx.Err() != nil {
		return Speech{}, ctx.Err()
	}
	if err != nil {
		return Speech{}, err
	}
	return p.wrap(pcm)
}

func (p *ElevenLabsProvider) wrap(raw []byte) (Speech, error) {
	format := p.cfg.OutputFormat
	switch {
	case strings.HasPrefix(format, "pcm_"):
		rate, _ := strconv.Atoi(strings.TrimPrefix(format, "pcm_"))
		wav, err := audio.EncodeWAVPCM16LE(raw, rate)
		if err != nil {
			return Speech{}, err
		}
		return Speech{Audio: wav, Format: audio.FormatWAV, Provider: p.Name()}, nil
	case strings.HasPrefix(format, "mp3_"):
		return Speech{Audio: raw, Format: audio.FormatMP3, Provider: p.Name()}, nil
	default:
		f, _ := audio.Sniff(raw)
		return Speech{Audio: raw, Format: f, Provider: p.Name()}, nil
	}
}

type elevenTTSStream struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (s *elevenTTSStream) writeJSON(payload map[string]any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(payload)
}

// collect reads audio frames until the server marks the stream final or
// closes the connection.
func (s *elevenTTSStream) collect() ([]byte, error) {
	var out []byte
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if len(out) > 0 && websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return out, nil
			}
			return nil, errors.Wrap(err, "read tts stream")
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		if errMsg := asString(raw["error"]); errMsg != "" {
			code := asString(raw["message_type"])
			return nil, errors.Errorf("elevenlabs %s (retryable=%t): %s", code, reliability.IsRetryableRealtimeMessageType(code), errMsg)
		}
		if chunk := asString(raw["audio"]); chunk != "" {
			b, err := base64.StdEncoding.DecodeString(chunk)
			if err != nil {
				return nil, errors.Wrap(err, "decode tts audio")
			}
			out = append(out, b...)
		}
		if asBool(raw["isFinal"]) || asBool(raw["is_final"]) {
			if len(out) == 0 {
				return nil, errors.New("elevenlabs returned no audio")
			}
			return out, nil
		}
	}
}

func (s *elevenTTSStream) Close() error {
	var retErr error
	s.closeOnce.Do(func() {
		retErr = s.conn.Close()
	})
	return retErr
}

func clampUnit(v, fallback float64) float64 {
	if v <= 0 {
		return fallback
	}
	if v > 1 {
		return 1
	}
	return v
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func asBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}
