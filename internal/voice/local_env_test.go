package voice

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/voicebot/internal/audio"
	"github.com/antoniostano/voicebot/internal/faults"
)

func TestPrependPathEnv(t *testing.T) {
	got := prependPathEnv([]string{"A=1"}, "LD_LIBRARY_PATH", "/tmp/lib")
	assert.Contains(t, got, "LD_LIBRARY_PATH=/tmp/lib")

	got = prependPathEnv([]string{"LD_LIBRARY_PATH=/opt/lib"}, "LD_LIBRARY_PATH", "/tmp/lib")
	assert.Contains(t, got, "LD_LIBRARY_PATH=/tmp/lib:/opt/lib")

	got = prependPathEnv([]string{"LD_LIBRARY_PATH=/tmp/lib:/opt/lib"}, "LD_LIBRARY_PATH", "/tmp/lib")
	assert.Equal(t, 1, strings.Count(strings.Join(got, "\n"), "/tmp/lib"), "duplicate path added: %v", got)
}

func TestInjectWhisperLibraryEnv(t *testing.T) {
	root := t.TempDir()
	binDir := filepath.Join(root, "bin")
	libDir := filepath.Join(root, "lib")
	require.NoError(t, os.MkdirAll(binDir, 0o755))
	require.NoError(t, os.MkdirAll(libDir, 0o755))

	toolPath := filepath.Join(binDir, "whisper-cli")
	require.NoError(t, os.WriteFile(toolPath, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	cmd := exec.Command("echo", "ok")
	cmd.Env = []string{"LD_LIBRARY_PATH=/opt/lib"}
	injectWhisperLibraryEnv(cmd, toolPath)

	assert.Contains(t, cmd.Env, "LD_LIBRARY_PATH="+libDir+":/opt/lib")
	assert.Contains(t, cmd.Env, "DYLD_FALLBACK_LIBRARY_PATH="+libDir)
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestWhisperRecognizerRunsCLI(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	dir := t.TempDir()
	cli := writeScript(t, dir, "whisper-cli", `
while [ $# -gt 0 ]; do
  case "$1" in
    -of) out="$2" ;;
    -l) lang="$2" ;;
  esac
  shift
done
printf ' namaste from %s \n' "$lang" > "$out.txt"
`)
	model := filepath.Join(dir, "ggml-tiny.bin")
	require.NoError(t, os.WriteFile(model, []byte("model"), 0o644))

	w, err := NewWhisperRecognizer(LocalConfig{WhisperCLI: cli, WhisperModelPath: model})
	require.NoError(t, err)

	wav, err := audio.EncodeWAVPCM16LE(mockTone(10), 16000)
	require.NoError(t, err)

	rec, err := w.Recognize(context.Background(), wav, audio.FormatWAV, "hi-IN")
	require.NoError(t, err)
	assert.Equal(t, "namaste from hi", rec.Text)
	assert.Zero(t, rec.Confidence)

	_, err = w.Recognize(context.Background(), []byte("ID3"), audio.FormatMP3, "hi-IN")
	rerr, ok := faults.AsRecognition(err)
	require.True(t, ok)
	assert.Equal(t, faults.RecognitionUnavailable, rerr.Kind)
}

func TestWhisperRecognizerMissingModelIsConfigurationError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	cli := writeScript(t, t.TempDir(), "whisper-cli", "exit 0\n")
	_, err := NewWhisperRecognizer(LocalConfig{WhisperCLI: cli, WhisperModelPath: "/nonexistent/model.bin"})
	assert.True(t, faults.IsConfiguration(err))

	_, err = NewWhisperRecognizer(LocalConfig{WhisperCLI: "definitely-not-installed-whisper"})
	assert.True(t, faults.IsConfiguration(err))
}

func TestEspeakSpeakerReturnsWAV(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	dir := t.TempDir()
	wav, err := audio.EncodeWAVPCM16LE(mockTone(5), 16000)
	require.NoError(t, err)
	fixture := filepath.Join(dir, "out.wav")
	require.NoError(t, os.WriteFile(fixture, wav, 0o644))

	cli := writeScript(t, dir, "espeak-ng", `
[ "$2" = "ta" ] || exit 3
cat "`+fixture+`"
`)
	e, err := NewEspeakSpeaker(LocalConfig{EspeakCLI: cli})
	require.NoError(t, err)
	assert.False(t, e.Online())

	speech, err := e.Speak(context.Background(), "வணக்கம்", "ta-IN")
	require.NoError(t, err)
	assert.Equal(t, audio.FormatWAV, speech.Format)
	assert.Equal(t, wav, speech.Audio)

	_, err = e.Speak(context.Background(), "hello", "en-IN")
	assert.Error(t, err)
}
