package voice

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/antoniostano/voicebot/internal/audio"
	"github.com/antoniostano/voicebot/internal/faults"
	"github.com/antoniostano/voicebot/internal/lang"
	"github.com/antoniostano/voicebot/internal/observability"
	"github.com/antoniostano/voicebot/internal/reliability"
)

// defaultConfidence is reported when a recognizer gives no confidence score.
const defaultConfidence = 1.0

// Transcriber tries recognizers in order until one produces a transcript.
type Transcriber struct {
	recognizers []Recognizer
	timeout     time.Duration
	metrics     *observability.Metrics
}

func NewTranscriber(timeout time.Duration, metrics *observability.Metrics, recognizers ...Recognizer) *Transcriber {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Transcriber{recognizers: recognizers, timeout: timeout, metrics: metrics}
}

// Providers lists recognizer names in evaluation order.
func (t *Transcriber) Providers() []string {
	out := make([]string, 0, len(t.recognizers))
	for _, r := range t.recognizers {
		out = append(out, r.Name())
	}
	return out
}

// Transcribe validates data and returns the first successful transcript.
// Service failures move on to the next recognizer; an unintelligible result
// stops the chain. When every recognizer fails the last error is returned.
func (t *Transcriber) Transcribe(ctx context.Context, data []byte, tag lang.Tag) (Transcript, error) {
	format, err := audio.Validate(data)
	if err != nil {
		return Transcript{}, err
	}
	if len(t.recognizers) == 0 {
		return Transcript{}, faults.Unavailable("", errors.New("no speech recognizers configured"))
	}

	start := time.Now()
	defer func() { t.metrics.ObserveStage("transcribe", time.Since(start)) }()

	var lastErr error
	for i, r := range t.recognizers {
		name := r.Name()
		callCtx, cancel := context.WithTimeout(ctx, t.timeout)
		rec, err := r.Recognize(callCtx, data, format, tag)
		cancel()

		if err == nil {
			text := strings.TrimSpace(rec.Text)
			if text == "" {
				t.metrics.ObserveProvider("stt", name, "unintelligible")
				return Transcript{}, faults.Unintelligible(name)
			}
			t.metrics.ObserveProvider("stt", name, "ok")
			if i > 0 {
				t.metrics.ObserveFallback("stt", name)
			}
			confidence := rec.Confidence
			if confidence <= 0 || confidence > 1 {
				confidence = defaultConfidence
			}
			return Transcript{Text: text, Confidence: confidence, Provider: name}, nil
		}

		if ctx.Err() != nil {
			t.metrics.ObserveProvider("stt", name, "canceled")
			return Transcript{}, ctx.Err()
		}
		err = reliability.RecognitionFromTransport(name, err)
		recErr, _ := faults.AsRecognition(err)
		if recErr != nil && recErr.Kind == faults.RecognitionUnintelligible {
			t.metrics.ObserveProvider("stt", name, "unintelligible")
			return Transcript{}, err
		}
		t.metrics.ObserveProvider("stt", name, "error")
		log.Warn().Err(err).Str("provider", name).Str("language", tag.String()).Msg("speech recognizer failed")
		lastErr = err
	}
	return Transcript{}, lastErr
}

// Synthesizer tries speakers in order until one produces audio.
type Synthesizer struct {
	online  []Speaker
	offline []Speaker
	timeout time.Duration
	metrics *observability.Metrics
}

func NewSynthesizer(timeout time.Duration, metrics *observability.Metrics, speakers ...Speaker) *Synthesizer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	s := &Synthesizer{timeout: timeout, metrics: metrics}
	for _, sp := range speakers {
		if sp.Online() {
			s.online = append(s.online, sp)
		} else {
			s.offline = append(s.offline, sp)
		}
	}
	return s
}

// Order returns speaker names in the order Synthesize would try them.
func (s *Synthesizer) Order(preferOnline bool) []string {
	speakers := s.order(preferOnline)
	out := make([]string, 0, len(speakers))
	for _, sp := range speakers {
		out = append(out, sp.Name())
	}
	return out
}

func (s *Synthesizer) order(preferOnline bool) []Speaker {
	out := make([]Speaker, 0, len(s.online)+len(s.offline))
	if preferOnline {
		out = append(out, s.online...)
		return append(out, s.offline...)
	}
	out = append(out, s.offline...)
	return append(out, s.online...)
}

// Synthesize renders text with the first speaker that succeeds. Intermediate
// failures are logged; only total failure returns a SynthesisError listing
// every attempt.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, tag lang.Tag, preferOnline bool) (Speech, error) {
	spoken := sanitizeSpeechText(text, tag)
	if spoken == "" {
		return Speech{}, faults.Invalid("text", "nothing to speak")
	}

	start := time.Now()
	defer func() { s.metrics.ObserveStage("synthesize", time.Since(start)) }()

	var attempts []faults.Attempt
	for i, sp := range s.order(preferOnline) {
		name := sp.Name()
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		speech, err := sp.Speak(callCtx, spoken, tag)
		cancel()
		if err == nil && len(speech.Audio) == 0 {
			err = errors.New("empty audio")
		}
		if err == nil {
			s.metrics.ObserveProvider("tts", name, "ok")
			if i > 0 {
				s.metrics.ObserveFallback("tts", name)
			}
			speech.Provider = name
			if speech.Format == "" {
				if f, ok := audio.Sniff(speech.Audio); ok {
					speech.Format = f
				}
			}
			return speech, nil
		}
		if ctx.Err() != nil {
			s.metrics.ObserveProvider("tts", name, "canceled")
			return Speech{}, ctx.Err()
		}
		s.metrics.ObserveProvider("tts", name, "error")
		log.Warn().Err(err).Str("provider", name).Str("language", tag.String()).Msg("speech synthesizer failed, trying next")
		attempts = append(attempts, faults.Attempt{Provider: name, Err: err})
	}
	return Speech{}, &faults.SynthesisError{Attempts: attempts}
}
