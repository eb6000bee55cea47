package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/antoniostano/voicebot/internal/audio"
	"github.com/antoniostano/voicebot/internal/faults"
	"github.com/antoniostano/voicebot/internal/intent"
	"github.com/antoniostano/voicebot/internal/interactions"
	"github.com/antoniostano/voicebot/internal/lang"
	"github.com/antoniostano/voicebot/internal/memory"
	"github.com/antoniostano/voicebot/internal/observability"
	"github.com/antoniostano/voicebot/internal/sentiment"
	"github.com/antoniostano/voicebot/internal/voice"
)

// Deps are the collaborators an Orchestrator composes.
type Deps struct {
	Languages   *lang.Registry
	Detector    *lang.Detector
	Scorer      *sentiment.Scorer
	Responder   *intent.Responder
	Transcriber *voice.Transcriber
	Synthesizer *voice.Synthesizer
	AudioStore  *audio.Store
	Recorder    *interactions.Recorder
	Memory      memory.Store
	Metrics     *observability.Metrics
}

// Options are the orchestrator's tunables.
type Options struct {
	// EmpathyThreshold is the compound score below which a voice turn gets
	// the empathetic reply.
	EmpathyThreshold float64
	PreferOnline     bool
}

// Orchestrator is safe for concurrent use; turns for different users are
// independent.
type Orchestrator struct {
	deps Deps
	opts Options
}

func New(deps Deps, opts Options) (*Orchestrator, error) {
	switch {
	case deps.Languages == nil:
		return nil, errors.New("conversation: language registry is required")
	case deps.Detector == nil:
		return nil, errors.New("conversation: language detector is required")
	case deps.Scorer == nil:
		return nil, errors.New("conversation: sentiment scorer is required")
	case deps.Responder == nil:
		return nil, errors.New("conversation: responder is required")
	case deps.Memory == nil:
		return nil, errors.New("conversation: memory store is required")
	}
	return &Orchestrator{deps: deps, opts: opts}, nil
}

// HandleText answers a typed message.
func (o *Orchestrator) HandleText(ctx context.Context, in TextTurn) (Result, error) {
	start := time.Now()
	turnID := uuid.NewString()

	message := strings.TrimSpace(in.Message)
	if message == "" {
		o.deps.Metrics.ObserveTurn("text", "invalid", time.Since(start))
		return Result{}, faults.Invalid("message", "must not be empty")
	}
	if err := ctx.Err(); err != nil {
		o.deps.Metrics.ObserveTurn("text", "canceled", time.Since(start))
		return Result{}, err
	}

	tag := o.resolveTextLanguage(message, in.LanguageHint)
	scores := o.score(message)
	reply := o.respond(message, tag)

	result := Result{
		TurnID:      turnID,
		Text:        reply.Text,
		Language:    tag,
		Intent:      reply.Intent,
		Confidence:  reply.Confidence,
		Sentiment:   scores,
		Suggestions: reply.Suggestions,
	}

	o.record(interactions.Record{
		CustomerID:     in.CustomerID,
		Type:           interactions.TypeForIntent(reply.Intent),
		Content:        exchange(message, reply.Text),
		Language:       tag.String(),
		SentimentScore: interactions.Score(scores.Compound),
	})
	o.remember(ctx, in.UserID, message, reply, tag)

	o.deps.Metrics.ObserveIntent(reply.Intent)
	o.deps.Metrics.ObserveTurn("text", "ok", time.Since(start))
	log.Info().
		Str("turn_id", turnID).
		Str("user_id", in.UserID).
		Str("language", tag.String()).
		Str("intent", reply.Intent).
		Dur("elapsed", time.Since(start)).
		Msg("text turn completed")
	return result, nil
}

// resolveTextLanguage prefers a detected non-default language, then a
// supported hint, then the default.
func (o *Orchestrator) resolveTextLanguage(message, hint string) lang.Tag {
	start := time.Now()
	detected := o.deps.Detector.Detect(message)
	o.deps.Metrics.ObserveStage("detect_language", time.Since(start))
	if detected != o.deps.Languages.Default() {
		return detected
	}
	if tag, ok := o.deps.Languages.Lookup(hint); ok {
		return tag
	}
	return o.deps.Languages.Default()
}

func (o *Orchestrator) score(text string) sentiment.Scores {
	start := time.Now()
	defer func() { o.deps.Metrics.ObserveStage("score_sentiment", time.Since(start)) }()
	return o.deps.Scorer.Score(text)
}

// respond classifies message; a panic while rendering yields the apology.
func (o *Orchestrator) respond(message string, tag lang.Tag) (reply intent.Reply) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("language", tag.String()).Msg("response generation failed")
			reply = o.deps.Responder.Apology(tag)
		}
		o.deps.Metrics.ObserveStage("respond", time.Since(start))
	}()
	return o.deps.Responder.ClassifyAndRespond(message, tag)
}

func (o *Orchestrator) record(r interactions.Record) {
	if o.deps.Recorder == nil {
		return
	}
	o.deps.Recorder.Record(r)
}

func (o *Orchestrator) remember(ctx context.Context, userID, message string, reply intent.Reply, tag lang.Tag) {
	if strings.TrimSpace(userID) == "" {
		return
	}
	turn := memory.Turn{
		Message:  message,
		Reply:    reply.Text,
		Intent:   reply.Intent,
		Language: tag.String(),
	}
	// The turn already succeeded; a caller hang-up must not lose its memory.
	if err := o.deps.Memory.Append(context.WithoutCancel(ctx), userID, turn, map[string]string{"language": tag.String()}); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("conversation memory append failed")
	}
}

func exchange(message, reply string) string {
	return "customer: " + message + "\nassistant: " + reply
}

// History returns recent interaction records for a customer, most recent
// first. Store failures yield an empty list.
func (o *Orchestrator) History(ctx context.Context, customerID string, limit int) []interactions.Record {
	if o.deps.Recorder == nil {
		return []interactions.Record{}
	}
	records, err := o.deps.Recorder.Store().Recent(ctx, customerID, limit)
	if err != nil {
		log.Warn().Err(err).Str("customer_id", customerID).Msg("interaction history unavailable")
		return []interactions.Record{}
	}
	if records == nil {
		records = []interactions.Record{}
	}
	return records
}

// Conversation returns the retained memory for userID.
func (o *Orchestrator) Conversation(ctx context.Context, userID string, limit int) (memory.Conversation, bool, error) {
	return o.deps.Memory.Get(ctx, userID, limit)
}

// ClearConversation forgets userID's memory.
func (o *Orchestrator) ClearConversation(ctx context.Context, userID string) error {
	return o.deps.Memory.Clear(ctx, userID)
}

// Stats summarizes conversation memory.
func (o *Orchestrator) Stats(ctx context.Context) (memory.Stats, error) {
	return o.deps.Memory.Stats(ctx)
}

// Languages lists the supported languages.
func (o *Orchestrator) Languages() []lang.Info {
	return o.deps.Languages.Languages()
}

// DefaultLanguage is the configured fallback language.
func (o *Orchestrator) DefaultLanguage() lang.Tag {
	return o.deps.Languages.Default()
}

// AnalyzeSentiment scores text, recording it when a customer is given.
func (o *Orchestrator) AnalyzeSentiment(ctx context.Context, text, customerID string) (sentiment.Scores, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return sentiment.Scores{}, faults.Invalid("text", "must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return sentiment.Scores{}, err
	}
	scores := o.score(text)
	if customerID != "" {
		o.record(interactions.Record{
			CustomerID:     customerID,
			Type:           interactions.TypeGeneral,
			Content:        text,
			Language:       o.deps.Detector.Detect(text).String(),
			SentimentScore: interactions.Score(scores.Compound),
		})
	}
	return scores, nil
}

// Offers lists the current promotions.
func (o *Orchestrator) Offers() []intent.Offer {
	return o.deps.Responder.Offers()
}

// Vehicles lists catalog entries, filtered by category and fuel when given.
func (o *Orchestrator) Vehicles(category, fuel string) []intent.Vehicle {
	out := o.deps.Responder.Catalog().Select(category, fuel, 0)
	if out == nil {
		out = []intent.Vehicle{}
	}
	return out
}

// Providers names the speech providers in the order they are tried.
func (o *Orchestrator) Providers() (transcribers, synthesizers []string) {
	if o.deps.Transcriber != nil {
		transcribers = o.deps.Transcriber.Providers()
	}
	if o.deps.Synthesizer != nil {
		synthesizers = o.deps.Synthesizer.Order(o.opts.PreferOnline)
	}
	return transcribers, synthesizers
}

// AudioFile resolves a previously synthesized file name to its path.
func (o *Orchestrator) AudioFile(filename string) (string, error) {
	if o.deps.AudioStore == nil {
		return "", errors.New("audio storage is disabled")
	}
	return o.deps.AudioStore.Open(filename)
}

// Ping checks the interaction store.
func (o *Orchestrator) Ping(ctx context.Context) error {
	if o.deps.Recorder == nil {
		return nil
	}
	return o.deps.Recorder.Store().Ping(ctx)
}
