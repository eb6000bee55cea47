package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/antoniostano/voicebot/internal/faults"
	"github.com/antoniostano/voicebot/internal/intent"
	"github.com/antoniostano/voicebot/internal/interactions"
	"github.com/antoniostano/voicebot/internal/lang"
	"github.com/antoniostano/voicebot/internal/voice"
)

var errVoiceDisabled = faults.Misconfigured("VOICE_PROVIDER", "no speech providers are configured")

// HandleVoice answers a recorded utterance with text and, when synthesis
// succeeds, audio. Synthesis failure degrades to a text-only result.
func (o *Orchestrator) HandleVoice(ctx context.Context, in VoiceTurn) (Result, error) {
	start := time.Now()
	turnID := uuid.NewString()
	if o.deps.Transcriber == nil {
		return Result{}, errVoiceDisabled
	}

	transcript, tag, err := o.transcribe(ctx, in.Audio, in.LanguageHint)
	if err != nil {
		o.deps.Metrics.ObserveTurn("voice", outcome(err), time.Since(start))
		return Result{}, err
	}

	scores := o.score(transcript.Text)
	var reply intent.Reply
	if scores.Compound < o.opts.EmpathyThreshold {
		reply = o.deps.Responder.Empathy(tag)
	} else {
		reply = o.respond(transcript.Text, tag)
	}

	result := Result{
		TurnID:               turnID,
		Text:                 reply.Text,
		Language:             tag,
		Intent:               reply.Intent,
		Confidence:           reply.Confidence,
		Sentiment:            scores,
		Suggestions:          reply.Suggestions,
		Transcript:           transcript.Text,
		TranscriptLanguage:   tag,
		TranscriptConfidence: transcript.Confidence,
	}

	preferOnline := o.opts.PreferOnline
	if in.PreferOnline != nil {
		preferOnline = *in.PreferOnline
	}
	if o.deps.Synthesizer != nil {
		speech, err := o.deps.Synthesizer.Synthesize(ctx, reply.Text, tag, preferOnline)
		switch {
		case err == nil:
			result.Audio = speech.Audio
			result.AudioFormat = speech.Format
			result.AudioProvider = speech.Provider
			result.AudioFilename = o.persist(speech)
		case ctx.Err() != nil:
			o.deps.Metrics.ObserveTurn("voice", "canceled", time.Since(start))
			return Result{}, ctx.Err()
		default:
			log.Warn().Err(err).Str("turn_id", turnID).Str("language", tag.String()).Msg("speech synthesis failed; replying with text only")
		}
	}

	o.record(interactions.Record{
		CustomerID:     in.CustomerID,
		Type:           interactions.TypeVoiceCall,
		Content:        exchange(transcript.Text, reply.Text),
		Language:       tag.String(),
		SentimentScore: interactions.Score(scores.Compound),
	})
	o.remember(ctx, in.UserID, transcript.Text, reply, tag)

	o.deps.Metrics.ObserveIntent(reply.Intent)
	o.deps.Metrics.ObserveTurn("voice", "ok", time.Since(start))
	log.Info().
		Str("turn_id", turnID).
		Str("user_id", in.UserID).
		Str("language", tag.String()).
		Str("intent", reply.Intent).
		Str("stt_provider", transcript.Provider).
		Str("tts_provider", result.AudioProvider).
		Float64("sentiment", scores.Compound).
		Dur("elapsed", time.Since(start)).
		Msg("voice turn completed")
	return result, nil
}

// transcribe recognizes audio in the hinted language (or the default) and
// resolves the turn language from the hint or the transcript.
func (o *Orchestrator) transcribe(ctx context.Context, data []byte, hint string) (voice.Transcript, lang.Tag, error) {
	hinted, hasHint := o.deps.Languages.Lookup(hint)
	sttTag := o.deps.Languages.Default()
	if hasHint {
		sttTag = hinted
	}
	transcript, err := o.deps.Transcriber.Transcribe(ctx, data, sttTag)
	if err != nil {
		return voice.Transcript{}, "", err
	}
	if hasHint {
		return transcript, hinted, nil
	}
	start := time.Now()
	tag := o.deps.Detector.Detect(transcript.Text)
	o.deps.Metrics.ObserveStage("detect_language", time.Since(start))
	return transcript, tag, nil
}

func (o *Orchestrator) persist(speech voice.Speech) string {
	if o.deps.AudioStore == nil {
		return ""
	}
	saved, err := o.deps.AudioStore.Save(speech.Audio, speech.Format)
	if err != nil {
		log.Warn().Err(err).Msg("could not persist synthesized audio")
		return ""
	}
	return saved.Filename
}

// Transcribe converts speech to text and records a speech_to_text interaction.
func (o *Orchestrator) Transcribe(ctx context.Context, data []byte, hint, customerID string) (Transcription, error) {
	start := time.Now()
	if o.deps.Transcriber == nil {
		return Transcription{}, errVoiceDisabled
	}
	transcript, tag, err := o.transcribe(ctx, data, hint)
	if err != nil {
		o.deps.Metrics.ObserveTurn("stt", outcome(err), time.Since(start))
		return Transcription{}, err
	}
	scores := o.score(transcript.Text)
	o.record(interactions.Record{
		CustomerID:     customerID,
		Type:           interactions.TypeSpeechToText,
		Content:        transcript.Text,
		Language:       tag.String(),
		SentimentScore: interactions.Score(scores.Compound),
	})
	o.deps.Metrics.ObserveTurn("stt", "ok", time.Since(start))
	return Transcription{
		Text:       transcript.Text,
		Language:   tag,
		Confidence: transcript.Confidence,
		Provider:   transcript.Provider,
		Sentiment:  scores,
	}, nil
}

// Speak synthesizes text, persists the audio and records a text_to_speech
// interaction. Total synthesis failure is returned as a SynthesisError.
func (o *Orchestrator) Speak(ctx context.Context, text, hint, customerID string, preferOnline *bool) (Speech, error) {
	start := time.Now()
	text = strings.TrimSpace(text)
	if text == "" {
		return Speech{}, faults.Invalid("text", "must not be empty")
	}
	if o.deps.Synthesizer == nil {
		return Speech{}, errVoiceDisabled
	}
	tag, ok := o.deps.Languages.Lookup(hint)
	if !ok {
		tag = o.deps.Detector.Detect(text)
	}
	online := o.opts.PreferOnline
	if preferOnline != nil {
		online = *preferOnline
	}

	speech, err := o.deps.Synthesizer.Synthesize(ctx, text, tag, online)
	if err != nil {
		o.deps.Metrics.ObserveTurn("tts", outcome(err), time.Since(start))
		return Speech{}, err
	}
	out := Speech{
		Audio:    speech.Audio,
		Format:   speech.Format,
		Filename: o.persist(speech),
		Language: tag,
		Provider: speech.Provider,
	}
	o.record(interactions.Record{
		CustomerID: customerID,
		Type:       interactions.TypeTextToSpeech,
		Content:    text,
		Language:   tag.String(),
	})
	o.deps.Metrics.ObserveTurn("tts", "ok", time.Since(start))
	return out, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case faults.IsInputValidation(err):
		return "invalid"
	}
	if rec, ok := faults.AsRecognition(err); ok {
		return string(rec.Kind)
	}
	if faults.IsSynthesis(err) {
		return "synthesis"
	}
	return "error"
}
