package conversation

import (
	"context"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

type fixture struct {
	orch     *Orchestrator
	store    *interactions.InMemoryStore
	recorder *interactions.Recorder
	memory   *memory.LocalStore
	audioDir string
}

// flush waits for queued interaction records to be written.
func (f *fixture) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.recorder.Close(ctx))
}

func (f *fixture) records(t *testing.T) []interactions.Record {
	t.Helper()
	f.flush(t)
	got, err := f.store.Recent(context.Background(), "", 100)
	require.NoError(t, err)
	return got
}

func newFixture(t *testing.T, speakers ...voice.Speaker) *fixture {
	t.Helper()
	store := interactions.NewInMemoryStore()
	f := newFixtureWithStore(t, store, speakers...)
	f.store = store
	return f
}

func newFixtureWithStore(t *testing.T, store interactions.Store, speakers ...voice.Speaker) *fixture {
	t.Helper()
	reg, err := lang.NewRegistry("en-IN", []string{"en-IN", "hi-IN", "ta-IN", "te-IN", "mr-IN", "gu-IN", "bn-IN"})
	require.NoError(t, err)
	k, err := intent.LoadKnowledge("")
	require.NoError(t, err)
	responder, err := intent.NewResponder(k, reg.Default())
	require.NoError(t, err)

	metrics := observability.NewMetrics("voicebot_test")
	mock := voice.NewMockProvider()
	if len(speakers) == 0 {
		speakers = []voice.Speaker{mock}
	}
	dir := t.TempDir()
	audioStore, err := audio.NewStore(dir)
	require.NoError(t, err)

	recorder := interactions.NewRecorder(store, interactions.RecorderOptions{}, metrics)
	mem, err := memory.NewLocalStore(memory.Limits{})
	require.NoError(t, err)

	orch, err := New(Deps{
		Languages:   reg,
		Detector:    lang.NewDetector(reg),
		Scorer:      sentiment.NewScorer(),
		Responder:   responder,
		Transcriber: voice.NewTranscriber(time.Second, metrics, mock),
		Synthesizer: voice.NewSynthesizer(time.Second, metrics, speakers...),
		AudioStore:  audioStore,
		Recorder:    recorder,
		Memory:      mem,
		Metrics:     metrics,
	}, Options{EmpathyThreshold: -0.3, PreferOnline: true})
	require.NoError(t, err)
	return &fixture{orch: orch, recorder: recorder, memory: mem, audioDir: dir}
}

// utterance returns audio the mock recognizer reads back as text.
func utterance(t *testing.T, text string) []byte {
	t.Helper()
	speech, err := voice.NewMockProvider().Speak(context.Background(), text, "en-IN")
	require.NoError(t, err)
	return speech.Audio
}

type failingSpeaker struct {
	name   string
	online bool
}

func (f failingSpeaker) Name() string { return f.name }

func (f failingSpeaker) Online() bool { return f.online }

func (f failingSpeaker) Speak(context.Context, string, lang.Tag) (voice.Speech, error) {
	return voice.Speech{}, errors.New(f.name + " is down")
}

// unwritableStore rejects every write.
type unwritableStore struct {
	appends atomic.Int32
}

func (s *unwritableStore) Append(context.Context, interactions.Record) (int64, error) {
	s.appends.Add(1)
	return 0, errors.New("disk full")
}

func (s *unwritableStore) Recent(context.Context, string, int) ([]interactions.Record, error) {
	return nil, nil
}

func (s *unwritableStore) Ping(context.Context) error { return nil }

func (s *unwritableStore) Close() error { return nil }

func TestTurnsSucceedWhenInteractionStoreFails(t *testing.T) {
	store := &unwritableStore{}
	f := newFixtureWithStore(t, store)
	ctx := context.Background()

	text, err := f.orch.HandleText(ctx, TextTurn{UserID: "u1", CustomerID: "c1", Message: "Book a test ride"})
	require.NoError(t, err)
	assert.Equal(t, "test_ride_booking", text.Intent)

	spoken, err := f.orch.HandleVoice(ctx, VoiceTurn{UserID: "u1", CustomerID: "c1", Audio: utterance(t, "Tell me about electric scooters")})
	require.NoError(t, err)
	assert.Equal(t, "electric_vehicle_inquiry", spoken.Intent)
	assert.NotEmpty(t, spoken.Audio)

	f.flush(t)
	assert.Equal(t, int32(2), store.appends.Load())

	conv, ok, err := f.memory.Get(ctx, "u1", 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, conv.Turns, 2)
	assert.Equal(t, "test_ride_booking", conv.Turns[0].Intent)
	assert.Equal(t, "electric_vehicle_inquiry", conv.Turns[1].Intent)
}

func TestTextTurnBudgetRecommendation(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.HandleText(context.Background(), TextTurn{UserID: "u1", CustomerID: "c1", Message: "I want a bike under 1 lakh"})
	require.NoError(t, err)

	assert.Equal(t, "vehicle_recommendation_budget", res.Intent)
	assert.Regexp(t, regexp.MustCompile(`₹\d{2},\d{3}`), res.Text)
	assert.Equal(t, lang.Tag("en-IN"), res.Language)
	assert.NotEmpty(t, res.TurnID)
	assert.Nil(t, res.Audio)

	recs := f.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, interactions.TypeGeneral, recs[0].Type)
	assert.Equal(t, "c1", recs[0].CustomerID)
	assert.Contains(t, recs[0].Content, "I want a bike under 1 lakh")

	conv, ok, err := f.orch.Conversation(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, conv.Turns, 1)
	assert.Equal(t, res.Text, conv.Turns[0].Reply)
	assert.Equal(t, "en-IN", conv.Preferences["language"])
}

func TestTextTurnDetectsHindi(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.HandleText(context.Background(), TextTurn{Message: "मुझे एक अच्छी बाइक चाहिए", LanguageHint: "en-IN"})
	require.NoError(t, err)
	assert.Equal(t, lang.Tag("hi-IN"), res.Language)
	assert.NotEmpty(t, res.Text)
	assert.NotEmpty(t, res.Intent)
}

func TestTextTurnUsesSupportedHintForDefaultLanguageText(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.HandleText(context.Background(), TextTurn{Message: "hello", LanguageHint: "ta"})
	require.NoError(t, err)
	assert.Equal(t, lang.Tag("ta-IN"), res.Language)
	assert.Equal(t, "greeting", res.Intent)

	res, err = f.orch.HandleText(context.Background(), TextTurn{Message: "hello", LanguageHint: "fr-FR"})
	require.NoError(t, err)
	assert.Equal(t, lang.Tag("en-IN"), res.Language)
}

func TestEmptyTextTurnIsRejectedWithoutRecord(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.HandleText(context.Background(), TextTurn{UserID: "u1", Message: "   "})
	assert.True(t, faults.IsInputValidation(err))
	assert.Empty(t, f.records(t))

	_, ok, err := f.orch.Conversation(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTextTurnRecordTypeFollowsIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.HandleText(ctx, TextTurn{CustomerID: "c1", Message: "Can I book a test ride tomorrow"})
	require.NoError(t, err)
	_, err = f.orch.HandleText(ctx, TextTurn{CustomerID: "c1", Message: "When is my next maintenance due"})
	require.NoError(t, err)

	recs := f.records(t)
	require.Len(t, recs, 2)
	assert.Equal(t, interactions.TypeServiceInquiry, recs[0].Type)
	assert.Equal(t, interactions.TypeBookingInquiry, recs[1].Type)
}

func TestCanceledTextTurnFails(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.HandleText(ctx, TextTurn{UserID: "u1", Message: "hello"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.records(t))
}

func TestVoiceTurnRoundTrip(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.HandleVoice(context.Background(), VoiceTurn{
		UserID:     "u1",
		CustomerID: "c9",
		Audio:      utterance(t, "Tell me about electric scooters"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Tell me about electric scooters", res.Transcript)
	assert.Equal(t, 1.0, res.TranscriptConfidence)
	assert.Equal(t, "electric_vehicle_inquiry", res.Intent)
	assert.Equal(t, lang.Tag("en-IN"), res.Language)
	require.NotEmpty(t, res.Audio)
	assert.Equal(t, audio.FormatWAV, res.AudioFormat)
	assert.Equal(t, "mock", res.AudioProvider)
	assert.Regexp(t, `^tts_[0-9a-f]{8}_\d+\.wav$`, res.AudioFilename)
	assert.FileExists(t, f.audioDir+"/"+res.AudioFilename)

	recs := f.records(t)
	require.Len(t, recs, 1, "a voice turn writes exactly one record")
	assert.Equal(t, interactions.TypeVoiceCall, recs[0].Type)
	require.NotNil(t, recs[0].SentimentScore)
}

func TestVoiceTurnNegativeSentimentSelectsEmpathy(t *testing.T) {
	f := newFixture(t)

	scores := sentiment.NewScorer().Score("This is the worst service ever")
	assert.LessOrEqual(t, scores.Compound, -0.05)
	assert.Equal(t, sentiment.Negative, scores.Overall)

	res, err := f.orch.HandleVoice(context.Background(), VoiceTurn{Audio: utterance(t, "This is the worst service ever")})
	require.NoError(t, err)
	assert.Equal(t, "empathetic_support", res.Intent)
	assert.Less(t, res.Sentiment.Compound, -0.3)
}

func TestTextTurnDoesNotApplyEmpathyOverride(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.HandleText(context.Background(), TextTurn{Message: "This is the worst service ever"})
	require.NoError(t, err)
	assert.NotEqual(t, "empathetic_support", res.Intent)
	assert.Less(t, res.Sentiment.Compound, 0.0)
}

func TestVoiceTurnHintSetsLanguage(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.HandleVoice(context.Background(), VoiceTurn{Audio: utterance(t, "hello"), LanguageHint: "hi-IN"})
	require.NoError(t, err)
	assert.Equal(t, lang.Tag("hi-IN"), res.Language)
	assert.Equal(t, "greeting", res.Intent)
}

func TestVoiceTurnDetectsLanguageFromTranscript(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.HandleVoice(context.Background(), VoiceTurn{Audio: utterance(t, "வணக்கம்")})
	require.NoError(t, err)
	assert.Equal(t, lang.Tag("ta-IN"), res.Language)
}

func TestVoiceTurnRejectsInvalidAudio(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.HandleVoice(context.Background(), VoiceTurn{UserID: "u1", Audio: []byte("RIFX-not-audio")})
	assert.True(t, faults.IsInputValidation(err))
	assert.Equal(t, 400, faults.HTTPStatus(err))
	assert.Empty(t, f.records(t))

	_, ok, _ := f.orch.Conversation(context.Background(), "u1", 0)
	assert.False(t, ok)
}

func TestVoiceTurnDegradesToTextWhenSynthesisFails(t *testing.T) {
	f := newFixture(t, failingSpeaker{name: "google_tts", online: true}, failingSpeaker{name: "espeak"})

	res, err := f.orch.HandleVoice(context.Background(), VoiceTurn{UserID: "u1", Audio: utterance(t, "hello")})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Text)
	assert.Nil(t, res.Audio)
	assert.Empty(t, res.AudioFilename)
	assert.Len(t, f.records(t), 1)
}

func TestSpeakFallsBackToOffline(t *testing.T) {
	f := newFixture(t, failingSpeaker{name: "google_tts", online: true}, voice.NewMockProvider())

	out, err := f.orch.Speak(context.Background(), "Welcome to our showroom", "en-IN", "c1", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, out.Audio)
	assert.Equal(t, "mock", out.Provider)
	assert.NotEmpty(t, out.Filename)

	recs := f.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, interactions.TypeTextToSpeech, recs[0].Type)
	assert.Nil(t, recs[0].SentimentScore)
}

func TestSpeakReturnsSynthesisErrorWhenAllFail(t *testing.T) {
	f := newFixture(t, failingSpeaker{name: "google_tts", online: true}, failingSpeaker{name: "espeak"})

	_, err := f.orch.Speak(context.Background(), "Welcome", "", "", nil)
	assert.True(t, faults.IsSynthesis(err))
	assert.Empty(t, f.records(t))

	_, err = f.orch.Speak(context.Background(), "  ", "", "", nil)
	assert.True(t, faults.IsInputValidation(err))
}

func TestTranscribeRecordsSpeechToText(t *testing.T) {
	f := newFixture(t)

	out, err := f.orch.Transcribe(context.Background(), utterance(t, "नमस्ते"), "", "c2")
	require.NoError(t, err)
	assert.Equal(t, "नमस्ते", out.Text)
	assert.Equal(t, lang.Tag("hi-IN"), out.Language)
	assert.Equal(t, "mock", out.Provider)

	recs := f.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, interactions.TypeSpeechToText, recs[0].Type)
	assert.Equal(t, "c2", recs[0].CustomerID)
}

func TestAnalyzeSentiment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.orch.AnalyzeSentiment(ctx, "I love this scooter", "")
	require.NoError(t, err)
	second, err := f.orch.AnalyzeSentiment(ctx, "I love this scooter", "c3")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, sentiment.Positive, first.Overall)

	_, err = f.orch.AnalyzeSentiment(ctx, "", "c3")
	assert.True(t, faults.IsInputValidation(err))

	recs := f.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, "c3", recs[0].CustomerID)
}

type brokenStore struct{ *interactions.InMemoryStore }

func (brokenStore) Recent(context.Context, string, int) ([]interactions.Record, error) {
	return nil, errors.New("connection reset")
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, msg := range []string{"hello", "show me scooters", "what about EMI"} {
		_, err := f.orch.HandleText(ctx, TextTurn{CustomerID: "c1", Message: msg})
		require.NoError(t, err)
	}
	_, err := f.orch.HandleText(ctx, TextTurn{CustomerID: "c2", Message: "hello"})
	require.NoError(t, err)
	f.flush(t)

	hist := f.orch.History(ctx, "c1", 2)
	require.Len(t, hist, 2)
	assert.Contains(t, hist[0].Content, "what about EMI")

	broken := interactions.NewRecorder(brokenStore{interactions.NewInMemoryStore()}, interactions.RecorderOptions{}, nil)
	f.orch.deps.Recorder = broken
	assert.Empty(t, f.orch.History(ctx, "c1", 5))
	assert.NotNil(t, f.orch.History(ctx, "c1", 5))
}

func TestStatsAndClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.orch.HandleText(ctx, TextTurn{UserID: "u1", Message: "hello"})
	require.NoError(t, err)
	_, err = f.orch.HandleText(ctx, TextTurn{UserID: "u2", Message: "नमस्ते"})
	require.NoError(t, err)
	_, err = f.orch.HandleText(ctx, TextTurn{Message: "anonymous turns are not remembered"})
	require.NoError(t, err)

	st, err := f.orch.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Users)
	assert.Equal(t, 2, st.Turns)
	assert.Equal(t, 1, st.Languages["hi-IN"])

	require.NoError(t, f.orch.ClearConversation(ctx, "u1"))
	_, ok, err := f.orch.Conversation(ctx, "u1", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Len(t, f.orch.Languages(), 7)
}

func TestNewRequiresCoreDeps(t *testing.T) {
	_, err := New(Deps{}, Options{})
	assert.Error(t, err)
}

func TestCatalogProvidersAndAudioFiles(t *testing.T) {
	f := newFixture(t, failingSpeaker{name: "google_tts", online: true}, voice.NewMockProvider())

	assert.Len(t, f.orch.Offers(), 4)
	all := f.orch.Vehicles("", "")
	assert.Len(t, all, 17)
	for _, v := range f.orch.Vehicles("two_wheeler", "electric") {
		assert.Equal(t, "two_wheeler", v.Category)
		assert.Equal(t, "electric", v.Fuel)
	}
	assert.Empty(t, f.orch.Vehicles("boat", ""))
	assert.NotNil(t, f.orch.Vehicles("boat", ""))

	stt, tts := f.orch.Providers()
	assert.Equal(t, []string{"mock"}, stt)
	assert.Equal(t, []string{"google_tts", "mock"}, tts)

	speech, err := f.orch.Speak(context.Background(), "Welcome", "en-IN", "", nil)
	require.NoError(t, err)
	path, err := f.orch.AudioFile(speech.Filename)
	require.NoError(t, err)
	assert.FileExists(t, path)

	_, err = f.orch.AudioFile("../etc/passwd")
	assert.Error(t, err)
	assert.NoError(t, f.orch.Ping(context.Background()))
}
