package app

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/antoniostano/voicebot/internal/audio"
	"github.com/antoniostano/voicebot/internal/config"
	"github.com/antoniostano/voicebot/internal/conversation"
	"github.com/antoniostano/voicebot/internal/httpapi"
	"github.com/antoniostano/voicebot/internal/intent"
	"github.com/antoniostano/voicebot/internal/interactions"
	"github.com/antoniostano/voicebot/internal/lang"
	"github.com/antoniostano/voicebot/internal/memory"
	"github.com/antoniostano/voicebot/internal/observability"
	"github.com/antoniostano/voicebot/internal/sentiment"
	"github.com/antoniostano/voicebot/internal/voice"
)

type VoiceInfo struct {
	Provider     string
	Detail       string
	Transcribers []string
	Synthesizers []string
}

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Orchestrator *conversation.Orchestrator
	Metrics      *observability.Metrics
	Voice        VoiceInfo

	memory memory.Store

	// Cleanup flushes queued interaction records and releases stores.
	Cleanup func(ctx context.Context) error
}

// StartBackground runs maintenance loops until ctx ends.
func (b *BuildResult) StartBackground(ctx context.Context) {
	if local, ok := b.memory.(*memory.LocalStore); ok {
		interval := b.Config.MemoryIdleTTL / 10
		if interval > 10*time.Minute {
			interval = 10 * time.Minute
		}
		local.StartJanitor(ctx, interval)
	}
}

// Build wires the service from cfg. Misconfiguration surfaces as a
// faults.ConfigurationError.
func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	languages, err := lang.NewRegistry(cfg.DefaultLanguage, cfg.SupportedLanguages)
	if err != nil {
		return nil, errors.Wrap(err, "language registry")
	}
	knowledge, err := intent.LoadKnowledge(cfg.KnowledgeFile)
	if err != nil {
		return nil, errors.Wrap(err, "load knowledge")
	}
	responder, err := intent.NewResponder(knowledge, languages.Default())
	if err != nil {
		return nil, errors.Wrap(err, "compile responder")
	}

	voiceSetup, err := resolveVoiceProviders(cfg)
	if err != nil {
		return nil, err
	}

	audioStore, err := audio.NewStore(cfg.AudioStorageDir)
	if err != nil {
		return nil, errors.Wrap(err, "audio storage")
	}

	store, err := interactions.NewStore(ctx, interactions.Options{
		Driver:      cfg.InteractionStore,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
	})
	if err != nil {
		return nil, errors.Wrap(err, "interaction store init failed")
	}
	recorder := interactions.NewRecorder(store, interactions.RecorderOptions{
		QueueSize: cfg.RecorderQueue,
		Retries:   cfg.RecorderRetries,
		RedactPII: cfg.RedactPII,
	}, metrics)

	mem, err := memory.NewStore(ctx, cfg.MemoryBackend, cfg.RedisAddr, memory.Limits{
		MaxUsers: cfg.MemoryMaxUsers,
		MaxTurns: cfg.MemoryMaxTurns,
		IdleTTL:  cfg.MemoryIdleTTL,
	})
	if err != nil {
		_ = recorder.Close(ctx)
		_ = store.Close()
		return nil, errors.Wrap(err, "conversation memory init failed")
	}

	orchestrator, err := conversation.New(conversation.Deps{
		Languages:   languages,
		Detector:    lang.NewDetector(languages),
		Scorer:      sentiment.NewScorer(),
		Responder:   responder,
		Transcriber: voice.NewTranscriber(cfg.SpeechTimeout, metrics, voiceSetup.recognizers...),
		Synthesizer: voice.NewSynthesizer(cfg.TTSTimeout, metrics, voiceSetup.speakers...),
		AudioStore:  audioStore,
		Recorder:    recorder,
		Memory:      mem,
		Metrics:     metrics,
	}, conversation.Options{
		EmpathyThreshold: cfg.EmpathyThreshold,
		PreferOnline:     cfg.TTSPreferOnline,
	})
	if err != nil {
		_ = recorder.Close(ctx)
		_ = store.Close()
		_ = mem.Close()
		return nil, err
	}

	cfg.VoiceProvider = voiceSetup.resolvedProvider
	api := httpapi.New(cfg, orchestrator, metrics)

	cleanup := func(ctx context.Context) error {
		var errs []string
		if err := recorder.Close(ctx); err != nil {
			errs = append(errs, err.Error())
		}
		if err := store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := mem.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return errors.New(strings.Join(errs, "; "))
		}
		return nil
	}

	stt, tts := voiceSetup.names()
	log.Info().
		Str("voice_provider", voiceSetup.resolvedProvider).
		Str("voice_detail", voiceSetup.detail).
		Str("default_language", languages.Default().String()).
		Str("interaction_store", cfg.InteractionStore).
		Str("memory_backend", cfg.MemoryBackend).
		Msg("voicebot wired")

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Orchestrator: orchestrator,
		Metrics:      metrics,
		Voice: VoiceInfo{
			Provider:     voiceSetup.resolvedProvider,
			Detail:       voiceSetup.detail,
			Transcribers: stt,
			Synthesizers: tts,
		},
		memory:  mem,
		Cleanup: cleanup,
	}, nil
}
