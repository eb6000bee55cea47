package app

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/antoniostano/voicebot/internal/config"
	"github.com/antoniostano/voicebot/internal/faults"
	"github.com/antoniostano/voicebot/internal/voice"
)

type voiceSetup struct {
	recognizers      []voice.Recognizer
	speakers         []voice.Speaker
	resolvedProvider string
	detail           string
}

func (v voiceSetup) names() (stt, tts []string) {
	for _, r := range v.recognizers {
		stt = append(stt, r.Name())
	}
	for _, s := range v.speakers {
		tts = append(tts, s.Name())
	}
	return stt, tts
}

func mockSetup(detail string) voiceSetup {
	p := voice.NewMockProvider()
	return voiceSetup{
		recognizers:      []voice.Recognizer{p},
		speakers:         []voice.Speaker{p},
		resolvedProvider: "mock",
		detail:           detail,
	}
}

// resolveVoiceProviders builds the recognizer and speaker chains for
// VOICE_PROVIDER. Cloud providers come first in the chains; the synthesizer
// reorders speakers per request by online preference.
func resolveVoiceProviders(cfg config.Config) (voiceSetup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.VoiceProvider))
	if mode == "" {
		mode = "auto"
	}

	cloud := func() voiceSetup {
		var setup voiceSetup
		if cfg.GoogleSpeechAPIKey != "" {
			setup.recognizers = append(setup.recognizers, voice.NewGoogleRecognizer(cfg.GoogleSpeechAPIKey, cfg.GoogleSpeechURL))
		}
		if cfg.ElevenLabsAPIKey != "" {
			p := voice.NewElevenLabsProvider(voice.ElevenLabsConfig{
				APIKey:       cfg.ElevenLabsAPIKey,
				BaseURL:      cfg.ElevenLabsBaseURL,
				WSBaseURL:    cfg.ElevenLabsWSBaseURL,
				VoiceID:      cfg.ElevenLabsTTSVoice,
				TTSModelID:   cfg.ElevenLabsTTSModel,
				STTModelID:   cfg.ElevenLabsSTTModel,
				OutputFormat: cfg.ElevenLabsTTSFormat,
			})
			setup.recognizers = append(setup.recognizers, p)
			setup.speakers = append(setup.speakers, p)
		}
		setup.speakers = append(setup.speakers, voice.NewGoogleSpeaker(cfg.GoogleTTSURL))
		return setup
	}

	local := func() (voiceSetup, error) {
		lc := voice.LocalConfig{
			WhisperCLI:       cfg.LocalWhisperCLI,
			WhisperModelPath: cfg.LocalWhisperModel,
			WhisperThreads:   cfg.LocalWhisperThreads,
			EspeakCLI:        cfg.LocalEspeakCLI,
			EspeakWordsPer:   cfg.LocalEspeakWordsPerM,
		}
		var setup voiceSetup
		whisper, err := voice.NewWhisperRecognizer(lc)
		if err != nil {
			return setup, err
		}
		espeak, err := voice.NewEspeakSpeaker(lc)
		if err != nil {
			return setup, err
		}
		setup.recognizers = []voice.Recognizer{whisper}
		setup.speakers = []voice.Speaker{espeak}
		return setup, nil
	}

	switch mode {
	case "mock":
		return mockSetup("mock"), nil
	case "local":
		setup, err := local()
		if err != nil {
			return voiceSetup{}, err
		}
		setup.resolvedProvider = "local"
		setup.detail = "whisper.cpp + espeak-ng"
		return setup, nil
	case "cloud":
		setup := cloud()
		if len(setup.recognizers) == 0 {
			return voiceSetup{}, faults.Misconfigured("VOICE_PROVIDER", "cloud mode needs GOOGLE_SPEECH_API_KEY or ELEVENLABS_API_KEY")
		}
		setup.resolvedProvider = "cloud"
		setup.detail = "cloud providers"
		return setup, nil
	case "auto":
		setup := cloud()
		offline, err := local()
		if err != nil {
			log.Info().Err(err).Msg("offline speech providers unavailable")
		} else {
			setup.recognizers = append(setup.recognizers, offline.recognizers...)
			setup.speakers = append(setup.speakers, offline.speakers...)
		}
		if len(setup.recognizers) == 0 {
			log.Warn().Msg("no speech recognizer configured; falling back to mock voice providers")
			return mockSetup("mock (no cloud credentials and local voice unavailable)"), nil
		}
		setup.resolvedProvider = "auto"
		stt, tts := setup.names()
		setup.detail = "stt=" + strings.Join(stt, ",") + " tts=" + strings.Join(tts, ",")
		return setup, nil
	default:
		return voiceSetup{}, faults.Misconfigured("VOICE_PROVIDER", "expected auto|cloud|local|mock, got "+cfg.VoiceProvider)
	}
}
