package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/antoniostano/voicebot/internal/faults"
)

// Config contains all runtime settings for the voicebot service.
// It is loaded once at startup and treated as read-only afterwards.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	LogLevel  string
	LogFormat string

	DefaultLanguage    string
	SupportedLanguages []string

	TTSPreferOnline  bool
	SpeechTimeout    time.Duration
	TTSTimeout       time.Duration
	AudioStorageDir  string
	EmpathyThreshold float64
	KnowledgeFile    string

	VoiceProvider string

	GoogleSpeechAPIKey string
	GoogleSpeechURL    string
	GoogleTTSURL       string

	ElevenLabsAPIKey     string
	ElevenLabsBaseURL    string
	ElevenLabsWSBaseURL  string
	ElevenLabsTTSVoice   string
	ElevenLabsTTSModel   string
	ElevenLabsSTTModel   string
	ElevenLabsTTSFormat  string
	LocalWhisperCLI      string
	LocalWhisperModel    string
	LocalWhisperThreads  int
	LocalEspeakCLI       string
	LocalEspeakWordsPerM int

	InteractionStore string
	DatabaseURL      string
	SQLitePath       string
	RecorderQueue    int
	RecorderRetries  int
	RedactPII        bool

	MemoryBackend  string
	RedisAddr      string
	MemoryMaxUsers int
	MemoryMaxTurns int
	MemoryIdleTTL  time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:            envOrDefault("APP_BIND_ADDR", ":8000"),
		MetricsNamespace:    envOrDefault("APP_METRICS_NAMESPACE", "voicebot"),
		LogLevel:            envOrDefault("LOG_LEVEL", "info"),
		LogFormat:           envOrDefault("LOG_FORMAT", "json"),
		DefaultLanguage:     envOrDefault("DEFAULT_LANGUAGE", "en-IN"),
		SupportedLanguages:  listFromEnv("SUPPORTED_LANGUAGES", []string{"en-IN", "hi-IN", "ta-IN", "te-IN", "mr-IN", "gu-IN", "bn-IN"}),
		TTSPreferOnline:     true,
		SpeechTimeout:       10 * time.Second,
		TTSTimeout:          15 * time.Second,
		AudioStorageDir:     envOrDefault("AUDIO_STORAGE", "./data/audio"),
		EmpathyThreshold:    -0.3,
		KnowledgeFile:       stringsTrimSpace("KNOWLEDGE_FILE"),
		VoiceProvider:       envOrDefault("VOICE_PROVIDER", "auto"),
		GoogleSpeechAPIKey:  stringsTrimSpace("GOOGLE_SPEECH_API_KEY"),
		GoogleSpeechURL:     envOrDefault("GOOGLE_SPEECH_URL", "https://speech.googleapis.com/v1/speech:recognize"),
		GoogleTTSURL:        envOrDefault("GOOGLE_TTS_URL", "https://translate.google.com/translate_tts"),
		ElevenLabsAPIKey:    stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsBaseURL:   envOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		ElevenLabsWSBaseURL: envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		// Multilingual premade voice; Indic languages need the multilingual model.
		ElevenLabsTTSVoice:  envOrDefault("ELEVENLABS_TTS_VOICE_ID", "cgSgspJ2msm6clMCkdW9"),
		ElevenLabsTTSModel:  envOrDefault("ELEVENLABS_TTS_MODEL_ID", "eleven_multilingual_v2"),
		ElevenLabsSTTModel:  envOrDefault("ELEVENLABS_STT_MODEL_ID", "scribe_v1"),
		ElevenLabsTTSFormat: envOrDefault("ELEVENLABS_TTS_OUTPUT_FORMAT", "mp3_44100_128"),
		LocalWhisperCLI:     envOrDefault("LOCAL_WHISPER_CLI", "whisper-cli"),
		LocalWhisperModel:   envOrDefault("LOCAL_WHISPER_MODEL_PATH", ".models/whisper/ggml-base.bin"),
		// 0 means "auto" (picked based on CPU count).
		LocalWhisperThreads:  0,
		LocalEspeakCLI:       envOrDefault("LOCAL_ESPEAK_CLI", "espeak-ng"),
		LocalEspeakWordsPerM: 150,
		InteractionStore:     envOrDefault("INTERACTION_STORE", "auto"),
		DatabaseURL:          stringsTrimSpace("DATABASE_URL"),
		SQLitePath:           envOrDefault("SQLITE_PATH", "./data/voicebot.db"),
		RecorderQueue:        256,
		RecorderRetries:      2,
		MemoryBackend:        envOrDefault("MEMORY_BACKEND", "local"),
		RedisAddr:            stringsTrimSpace("REDIS_ADDR"),
		MemoryMaxUsers:       10000,
		MemoryMaxTurns:       50,
		MemoryIdleTTL:        24 * time.Hour,
		ShutdownTimeout:      15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SpeechTimeout, err = durationFromEnv("SPEECH_TIMEOUT", cfg.SpeechTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSTimeout, err = durationFromEnv("TTS_TIMEOUT", cfg.TTSTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryIdleTTL, err = durationFromEnv("MEMORY_IDLE_TTL", cfg.MemoryIdleTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSPreferOnline, err = boolFromEnv("TTS_PREFER_ONLINE", cfg.TTSPreferOnline)
	if err != nil {
		return Config{}, err
	}
	cfg.RedactPII, err = boolFromEnv("STORE_REDACT_PII", cfg.RedactPII)
	if err != nil {
		return Config{}, err
	}
	cfg.EmpathyThreshold, err = floatFromEnv("EMPATHY_THRESHOLD", cfg.EmpathyThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.LocalWhisperThreads, err = intFromEnv("LOCAL_WHISPER_THREADS", cfg.LocalWhisperThreads)
	if err != nil {
		return Config{}, err
	}
	cfg.LocalEspeakWordsPerM, err = intFromEnv("LOCAL_ESPEAK_WPM", cfg.LocalEspeakWordsPerM)
	if err != nil {
		return Config{}, err
	}
	cfg.RecorderQueue, err = intFromEnv("STORE_QUEUE_SIZE", cfg.RecorderQueue)
	if err != nil {
		return Config{}, err
	}
	cfg.RecorderRetries, err = intFromEnv("STORE_WRITE_RETRIES", cfg.RecorderRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryMaxUsers, err = intFromEnv("MEMORY_MAX_USERS", cfg.MemoryMaxUsers)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryMaxTurns, err = intFromEnv("MEMORY_MAX_TURNS", cfg.MemoryMaxTurns)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. Violations are ConfigurationErrors.
func (c Config) Validate() error {
	if c.DefaultLanguage == "" {
		return faults.Misconfigured("DEFAULT_LANGUAGE", "must not be empty")
	}
	if len(c.SupportedLanguages) == 0 {
		return faults.Misconfigured("SUPPORTED_LANGUAGES", "must list at least one language")
	}
	found := false
	for _, tag := range c.SupportedLanguages {
		if strings.EqualFold(tag, c.DefaultLanguage) {
			found = true
			break
		}
	}
	if !found {
		return faults.Misconfigured("DEFAULT_LANGUAGE", fmt.Sprintf("%q is not in SUPPORTED_LANGUAGES", c.DefaultLanguage))
	}
	if c.SpeechTimeout < time.Second {
		return faults.Misconfigured("SPEECH_TIMEOUT", "must be at least 1s")
	}
	if c.TTSTimeout < time.Second {
		return faults.Misconfigured("TTS_TIMEOUT", "must be at least 1s")
	}
	if c.EmpathyThreshold < -1 || c.EmpathyThreshold > 1 {
		return faults.Misconfigured("EMPATHY_THRESHOLD", "must be within [-1, 1]")
	}
	switch c.VoiceProvider {
	case "auto", "cloud", "local", "mock":
	default:
		return faults.Misconfigured("VOICE_PROVIDER", fmt.Sprintf("unsupported value %q", c.VoiceProvider))
	}
	switch c.InteractionStore {
	case "auto", "memory", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return faults.Misconfigured("DATABASE_URL", "is required when INTERACTION_STORE=postgres")
		}
	default:
		return faults.Misconfigured("INTERACTION_STORE", fmt.Sprintf("unsupported value %q", c.InteractionStore))
	}
	switch c.MemoryBackend {
	case "local":
	case "redis":
		if c.RedisAddr == "" {
			return faults.Misconfigured("REDIS_ADDR", "is required when MEMORY_BACKEND=redis")
		}
	default:
		return faults.Misconfigured("MEMORY_BACKEND", fmt.Sprintf("unsupported value %q", c.MemoryBackend))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return faults.Misconfigured("LOG_FORMAT", "must be json or console")
	}
	if c.LocalWhisperThreads < 0 {
		return faults.Misconfigured("LOCAL_WHISPER_THREADS", "must be >= 0")
	}
	if c.LocalEspeakWordsPerM <= 0 {
		return faults.Misconfigured("LOCAL_ESPEAK_WPM", "must be positive")
	}
	if c.RecorderQueue <= 0 {
		return faults.Misconfigured("STORE_QUEUE_SIZE", "must be positive")
	}
	if c.RecorderRetries < 0 {
		return faults.Misconfigured("STORE_WRITE_RETRIES", "must be >= 0")
	}
	if c.MemoryMaxUsers <= 0 {
		return faults.Misconfigured("MEMORY_MAX_USERS", "must be positive")
	}
	if c.MemoryMaxTurns <= 0 {
		return faults.Misconfigured("MEMORY_MAX_TURNS", "must be positive")
	}
	if c.MemoryIdleTTL < time.Minute {
		return faults.Misconfigured("MEMORY_IDLE_TTL", "must be at least 1m")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func listFromEnv(key string, fallback []string) []string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, faults.Misconfigured(key, "parse error: "+err.Error())
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, faults.Misconfigured(key, "parse error: "+err.Error())
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, faults.Misconfigured(key, "parse error: "+err.Error())
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, faults.Misconfigured(key, "parse error: expected bool")
	}
}
