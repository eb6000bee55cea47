package voice

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/voicebot/internal/audio"
	"github.com/antoniostano/voicebot/internal/faults"
)

func TestElevenLabsRecognizeUploadsMultipart(t *testing.T) {
	wav := testWAV(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/speech-to-text", r.URL.Path)
		assert.Equal(t, "xi-secret", r.Header.Get("xi-api-key"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "scribe_v1", r.FormValue("model_id"))
		assert.Equal(t, "te", r.FormValue("language_code"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "audio.wav", hdr.Filename)
		got, _ := io.ReadAll(f)
		assert.Equal(t, wav, got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"language_code":"tel","language_probability":0.97,"text":" namaskaram "}`))
	}))
	defer srv.Close()

	p := NewElevenLabsProvider(ElevenLabsConfig{APIKey: "xi-secret", BaseURL: srv.URL})
	rec, err := p.Recognize(context.Background(), wav, audio.FormatWAV, "te-IN")
	require.NoError(t, err)
	assert.Equal(t, "namaskaram", rec.Text)
	assert.Zero(t, rec.Confidence)
}

func TestElevenLabsRecognizeClassifiesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"invalid api key"}`))
	}))
	defer srv.Close()

	_, err := NewElevenLabsProvider(ElevenLabsConfig{BaseURL: srv.URL}).Recognize(context.Background(), testWAV(t), audio.FormatWAV, "en-IN")
	rerr, ok := faults.AsRecognition(err)
	require.True(t, ok)
	assert.Equal(t, faults.RecognitionUnavailable, rerr.Kind)
	assert.Equal(t, "elevenlabs", rerr.Provider)
}

// ttsServer answers the stream-input protocol with the given frames once the
// client has closed its input.
func ttsServer(t *testing.T, frames ...map[string]any) (*httptest.Server, *sentTexts) {
	t.Helper()
	texts := &sentTexts{}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/v1/text-to-speech/voice-1/stream-input"))
		assert.Equal(t, "xi-secret", r.Header.Get("xi-api-key"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			text, _ := msg["text"].(string)
			texts.add(text)
			if text == "" {
				break
			}
		}
		for _, f := range frames {
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	return srv, texts
}

type sentTexts struct {
	mu    sync.Mutex
	items []string
}

func (s *sentTexts) add(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, text)
}

func (s *sentTexts) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.items...)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestElevenLabsSpeakWrapsPCMInWAV(t *testing.T) {
	pcm := mockTone(5)
	half := len(pcm) / 2
	srv, texts := ttsServer(t,
		map[string]any{"audio": base64.StdEncoding.EncodeToString(pcm[:half])},
		map[string]any{"audio": base64.StdEncoding.EncodeToString(pcm[half:])},
		map[string]any{"isFinal": true},
	)
	defer srv.Close()

	p := NewElevenLabsProvider(ElevenLabsConfig{
		APIKey:       "xi-secret",
		WSBaseURL:    wsURL(srv),
		VoiceID:      "voice-1",
		OutputFormat: "pcm_16000",
	})
	speech, err := p.Speak(context.Background(), "Welcome to the showroom", "en-IN")
	require.NoError(t, err)

	assert.Equal(t, audio.FormatWAV, speech.Format)
	header, samples, err := audio.ParseWAV(speech.Audio)
	require.NoError(t, err)
	assert.EqualValues(t, 16000, header.SampleRate)
	assert.Equal(t, pcm, samples)
	assert.Equal(t, []string{" ", "Welcome to the showroom ", ""}, texts.all())
}

func TestElevenLabsSpeakAcceptsNormalCloseAfterAudio(t *testing.T) {
	srv, _ := ttsServer(t, map[string]any{"audio": base64.StdEncoding.EncodeToString(fakeMP3)})
	defer srv.Close()

	p := NewElevenLabsProvider(ElevenLabsConfig{APIKey: "xi-secret", WSBaseURL: wsURL(srv), VoiceID: "voice-1"})
	speech, err := p.Speak(context.Background(), "hello", "en-IN")
	require.NoError(t, err)
	assert.Equal(t, audio.FormatMP3, speech.Format)
	assert.Equal(t, fakeMP3, speech.Audio)
}

func TestElevenLabsSpeakSurfacesServerError(t *testing.T) {
	srv, _ := ttsServer(t, map[string]any{"message_type": "quota_exceeded", "error": "character limit reached"})
	defer srv.Close()

	p := NewElevenLabsProvider(ElevenLabsConfig{APIKey: "xi-secret", WSBaseURL: wsURL(srv), VoiceID: "voice-1"})
	_, err := p.Speak(context.Background(), "hello", "en-IN")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota_exceeded")
	assert.Contains(t, err.Error(), "retryable=false")
}

func TestElevenLabsSpeakNeedsVoice(t *testing.T) {
	_, err := NewElevenLabsProvider(ElevenLabsConfig{}).Speak(context.Background(), "hello", "en-IN")
	assert.Error(t, err)
}
