package voice

import (
	"context"
	"encoding/base64"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/antoniostano/voicebot/internal/audio"
	"github.com/antoniostano/voicebot/internal/faults"
	"github.com/antoniostano/voicebot/internal/lang"
	"github.com/antoniostano/voicebot/internal/reliability"
)

const (
	defaultGoogleSpeechURL = "https://speech.googleapis.com/v1/speech:recognize"
	defaultGoogleTTSURL    = "https://translate.google.com/translate_tts"
	// googleTTSMaxChars is the longest query the translate TTS endpoint accepts.
	googleTTSMaxChars = 100
)

// GoogleRecognizer calls the Cloud Speech-to-Text v1 recognize endpoint with an API key.
type GoogleRecognizer struct {
	client *resty.Client
	url    string
	apiKey string
}

func NewGoogleRecognizer(apiKey, endpoint string) *GoogleRecognizer {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = defaultGoogleSpeechURL
	}
	return &GoogleRecognizer{client: resty.New(), url: endpoint, apiKey: apiKey}
}

func (g *GoogleRecognizer) Name() string { return "google" }

type googleRecognizeRequest struct {
	Config googleRecognitionConfig `json:"config"`
	Audio  struct {
		Content string `json:"content"`
	} `json:"audio"`
}

type googleRecognitionConfig struct {
	Encoding                   string `json:"encoding,omitempty"`
	SampleRateHertz            int    `json:"sampleRateHertz,omitempty"`
	LanguageCode               string `json:"languageCode"`
	EnableAutomaticPunctuation bool   `json:"enableAutomaticPunctuation"`
}

type googleRecognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"results"`
}

func (g *GoogleRecognizer) Recognize(ctx context.Context, data []byte, format audio.Format, tag lang.Tag) (Recognition, error) {
	cfg, err := googleConfigFor(data, format)
	if err != nil {
		return Recognition{}, faults.Unavailable(g.Name(), err)
	}
	cfg.LanguageCode = tag.String()
	cfg.EnableAutomaticPunctuation = true

	var body googleRecognizeRequest
	body.Config = cfg
	body.Audio.Content = base64.StdEncoding.EncodeToString(data)

	var out googleRecognizeResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("key", g.apiKey).
		SetBody(body).
		SetResult(&out).
		Post(g.url)
	if err != nil {
		return Recognition{}, reliability.RecognitionFromTransport(g.Name(), err)
	}
	if resp.IsError() {
		return Recognition{}, reliability.RecognitionFromStatus(g.Name(), resp.StatusCode(), resp.String())
	}

	var (
		parts      []string
		confidence float64
	)
	for _, r := range out.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		best := r.Alternatives[0]
		if t := strings.TrimSpace(best.Transcript); t != "" {
			parts = append(parts, t)
		}
		if confidence == 0 {
			confidence = best.Confidence
		}
	}
	if len(parts) == 0 {
		return Recognition{}, faults.Unintelligible(g.Name())
	}
	return Recognition{Text: strings.Join(parts, " "), Confidence: confidence}, nil
}

// googleConfigFor picks the v1 encoding for a container. WAV and FLAC carry
// their own headers; Opus containers need explicit settings.
func googleConfigFor(data []byte, format audio.Format) (googleRecognitionConfig, error) {
	switch format {
	case audio.FormatWAV:
		h, _, err := audio.ParseWAV(data)
		if err != nil {
			return googleRecognitionConfig{}, err
		}
		return googleRecognitionConfig{Encoding: "LINEAR16", SampleRateHertz: int(h.SampleRate)}, nil
	case audio.FormatFLAC:
		return googleRecognitionConfig{Encoding: "FLAC"}, nil
	case audio.FormatOGG:
		return googleRecognitionConfig{Encoding: "OGG_OPUS", SampleRateHertz: 48000}, nil
	case audio.FormatWebM:
		return googleRecognitionConfig{Encoding: "WEBM_OPUS", SampleRateHertz: 48000}, nil
	default:
		return googleRecognitionConfig{}, errors.Errorf("%s audio is not accepted by speech v1", format)
	}
}

// GoogleSpeaker fetches MP3 speech from the public translate TTS endpoint.
type GoogleSpeaker struct {
	client *resty.Client
	url    string
}

func NewGoogleSpeaker(endpoint string) *GoogleSpeaker {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = defaultGoogleTTSURL
	}
	client := resty.New().SetHeader("User-Agent", "Mozilla/5.0 (voicebot)")
	return &GoogleSpeaker{client: client, url: endpoint}
}

func (g *GoogleSpeaker) Name() string { return "google_tts" }

func (g *GoogleSpeaker) Online() bool { return true }

func (g *GoogleSpeaker) Speak(ctx context.Context, text string, tag lang.Tag) (Speech, error) {
	chunks := splitForTTS(text, googleTTSMaxChars)
	var out []byte
	for i, chunk := range chunks {
		resp, err := g.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"ie":      "UTF-8",
				"client":  "tw-ob",
				"tl":      tag.Base(),
				"q":       chunk,
				"total":   strconv.Itoa(len(chunks)),
				"idx":     strconv.Itoa(i),
				"textlen": strconv.Itoa(utf8.RuneCountInString(chunk)),
			}).
			Get(g.url)
		if err != nil {
			return Speech{}, errors.Wrap(err, "google tts request")
		}
		if resp.IsError() {
			return Speech{}, errors.Errorf("google tts HTTP %d", resp.StatusCode())
		}
		if f, ok := audio.Sniff(resp.Body()); !ok || f != audio.FormatMP3 {
			return Speech{}, errors.Errorf("google tts returned %s", resp.Header().Get("Content-Type"))
		}
		out = append(out, resp.Body()...)
	}
	return Speech{Audio: out, Format: audio.FormatMP3, Provider: g.Name()}, nil
}

// splitForTTS breaks text into pieces of at most limit runes, preferring
// sentence ends, then spaces.
func splitForTTS(text string, limit int) []string {
	var out []string
	rest := strings.TrimSpace(text)
	for rest != "" {
		runes := []rune(rest)
		if len(runes) <= limit {
			out = append(out, rest)
			break
		}
		cut := -1
		for i := limit - 1; i > limit/2; i-- {
			if strings.ContainsRune(".!?।", runes[i]) {
				cut = i + 1
				break
			}
		}
		if cut < 0 {
			for i := limit - 1; i > 0; i-- {
				if runes[i] == ' ' {
					cut = i
					break
				}
			}
		}
		if cut <= 0 {
			cut = limit
		}
		if piece := strings.TrimSpace(string(runes[:cut])); piece != "" {
			out = append(out, piece)
		}
		rest = strings.TrimSpace(string(runes[cut:]))
	}
	return out
}
