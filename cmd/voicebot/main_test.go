package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/voicebot/internal/app"
	"github.com/antoniostano/voicebot/internal/config"
	"github.com/antoniostano/voicebot/internal/protocol"
)

func mockEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("VOICE_PROVIDER", "mock")
	t.Setenv("INTERACTION_STORE", "memory")
	t.Setenv("MEMORY_BACKEND", "local")
	t.Setenv("AUDIO_STORAGE", filepath.Join(dir, "audio"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("APP_METRICS_NAMESPACE", "voicebot_cmd_test")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestChatCommandPrintsJSON(t *testing.T) {
	mockEnv(t)

	out, err := execute(t, "chat", "I", "want", "a", "bike", "under", "1", "lakh")
	require.NoError(t, err)

	var got protocol.ChatResponse
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "vehicle_recommendation_budget", got.Intent)
	assert.Equal(t, "en-IN", got.Language)
}

func TestSayCommandWritesAudio(t *testing.T) {
	dir := mockEnv(t)
	path := filepath.Join(dir, "hello.wav")

	_, err := execute(t, "say", "-l", "hi-IN", "-o", path, "नमस्ते")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data[:4]))
}

func TestLanguagesCommand(t *testing.T) {
	mockEnv(t)
	t.Setenv("SUPPORTED_LANGUAGES", "en-IN,hi-IN")

	out, err := execute(t, "languages")
	require.NoError(t, err)
	assert.Contains(t, out, "en-IN")
	assert.Contains(t, out, "(default)")
	assert.Contains(t, out, "हिन्दी")
}

func TestBadConfigFailsCommand(t *testing.T) {
	mockEnv(t)
	t.Setenv("VOICE_PROVIDER", "telepathy")

	_, err := execute(t, "chat", "hello")
	assert.Error(t, err)
}

func TestRunPerfAgainstServer(t *testing.T) {
	mockEnv(t)
	cfg, err := config.Load()
	require.NoError(t, err)
	built, err := app.Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = built.Cleanup(context.Background()) })
	srv := httptest.NewServer(built.API.Router())
	defer srv.Close()

	var log bytes.Buffer
	report, err := runPerf(context.Background(), resty.New(), perfOptions{
		baseURL:     srv.URL,
		turns:       3,
		texts:       []string{"hello", "book a test ride"},
		turnTimeout: 5 * time.Second,
		verbose:     true,
	}, &log)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Turns)
	assert.Zero(t, report.Failures)
	assert.LessOrEqual(t, report.P50, report.P95)
	assert.LessOrEqual(t, report.P95, report.Max)
	assert.Contains(t, log.String(), "intent=greeting")
	assert.Contains(t, log.String(), "intent=test_ride_booking")
}

func TestPercentile(t *testing.T) {
	assert.Zero(t, percentile(nil, 0.5))
	assert.Equal(t, 5.0, percentile([]float64{5}, 0.95))
	assert.InDelta(t, 2.5, percentile([]float64{1, 2, 3, 4}, 0.5), 1e-9)
	assert.InDelta(t, 3.85, percentile([]float64{1, 2, 3, 4}, 0.95), 1e-9)
}

func TestSplitUtterances(t *testing.T) {
	assert.Equal(t, []string{"a", "b c"}, splitUtterances(" a || b c |"))
	assert.Empty(t, splitUtterances("  "))
}
