package voice

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/antoniostano/voicebot/internal/audio"
	"github.com/antoniostano/voicebot/internal/faults"
	"github.com/antoniostano/voicebot/internal/lang"
)

type LocalConfig struct {
	WhisperCLI       string
	WhisperModelPath string
	WhisperThreads   int
	WhisperBeamSize  int

	EspeakCLI      string
	EspeakWordsPer int
}

// WhisperRecognizer transcribes 16-bit PCM WAV audio with the whisper.cpp CLI.
type WhisperRecognizer struct {
	cliPath   string
	modelPath string
	threads   int
	beamSize  int
}

func NewWhisperRecognizer(cfg LocalConfig) (*WhisperRecognizer, error) {
	cli := strings.TrimSpace(cfg.WhisperCLI)
	if cli == "" {
		cli = "whisper-cli"
	}
	cliPath, err := exec.LookPath(cli)
	if err != nil {
		return nil, faults.Misconfigured("LOCAL_WHISPER_CLI", "whisper.cpp CLI not found ("+cli+")")
	}
	modelPath := strings.TrimSpace(cfg.WhisperModelPath)
	if modelPath == "" {
		return nil, faults.Misconfigured("LOCAL_WHISPER_MODEL_PATH", "is required")
	}
	if !filepath.IsAbs(modelPath) {
		if wd, err := os.Getwd(); err == nil {
			modelPath = filepath.Join(wd, modelPath)
		}
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, faults.Misconfigured("LOCAL_WHISPER_MODEL_PATH", "model not found: "+modelPath)
	}

	threads := cfg.WhisperThreads
	if threads < 0 {
		return nil, faults.Misconfigured("LOCAL_WHISPER_THREADS", "must be >= 0")
	}
	if threads == 0 {
		threads = runtime.NumCPU()
		if threads > 8 {
			threads = 8
		}
		if threads < 2 {
			threads = 2
		}
	}
	beamSize := cfg.WhisperBeamSize
	if beamSize <= 0 {
		beamSize = 1
	}

	return &WhisperRecognizer{
		cliPath:   cliPath,
		modelPath: modelPath,
		threads:   threads,
		beamSize:  beamSize,
	}, nil
}

func (w *WhisperRecognizer) Name() string { return "whisper" }

func (w *WhisperRecognizer) Recognize(ctx context.Context, data []byte, format audio.Format, tag lang.Tag) (Recognition, error) {
	if format != audio.FormatWAV {
		return Recognition{}, faults.Unavailable(w.Name(), errors.Errorf("%s input needs conversion to PCM WAV", format))
	}
	header, _, err := audio.ParseWAV(data)
	if err != nil {
		return Recognition{}, faults.Unavailable(w.Name(), err)
	}
	if header.AudioFormat != 1 || header.BitsPerSample != 16 {
		return Recognition{}, faults.Unavailable(w.Name(), errors.Errorf("unsupported wav encoding %d/%d-bit", header.AudioFormat, header.BitsPerSample))
	}

	tmpDir, err := os.MkdirTemp("", "voicebot-whisper-*")
	if err != nil {
		return Recognition{}, err
	}
	defer os.RemoveAll(tmpDir)

	wavPath := filepath.Join(tmpDir, "audio.wav")
	if err := os.WriteFile(wavPath, data, 0o600); err != nil {
		return Recognition{}, errors.Wrap(err, "write whisper input")
	}
	outPrefix := filepath.Join(tmpDir, "out")

	// whisper.cpp CLI flag set varies slightly across builds; keep this conservative.
	args := []string{
		"-m", w.modelPath,
		"-f", wavPath,
		"-l", tag.Base(),
		"-otxt",
		"-of", outPrefix,
		"-nt",
		"-t", strconv.Itoa(w.threads),
		"-bs", strconv.Itoa(w.beamSize),
	}

	cmd := exec.CommandContext(ctx, w.cliPath, args...)
	injectWhisperLibraryEnv(cmd, w.cliPath)
	cmd.Stdout = io.Discard
	stderr := newTailBuffer(8 << 10)
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Recognition{}, ctx.Err()
		}
		detail := stderr.String()
		if detail == "" {
			detail = err.Error()
		}
		return Recognition{}, faults.ServiceFailure(w.Name(), errors.New("whisper.cpp failed: "+detail))
	}

	b, err := os.ReadFile(outPrefix + ".txt")
	if err != nil {
		return Recognition{}, faults.ServiceFailure(w.Name(), errors.Wrap(err, "read whisper output"))
	}
	text := strings.TrimSpace(string(b))
	if text == "" || text == "[BLANK_AUDIO]" {
		return Recognition{}, faults.Unintelligible(w.Name())
	}
	return Recognition{Text: text}, nil
}

// EspeakSpeaker synthesizes WAV audio offline with espeak-ng.
type EspeakSpeaker struct {
	cliPath string
	wpm     int
}

func NewEspeakSpeaker(cfg LocalConfig) (*EspeakSpeaker, error) {
	cli := strings.TrimSpace(cfg.EspeakCLI)
	if cli == "" {
		cli = "espeak-ng"
	}
	cliPath, err := exec.LookPath(cli)
	if err != nil {
		return nil, faults.Misconfigured("LOCAL_ESPEAK_CLI", "espeak-ng not found ("+cli+")")
	}
	wpm := cfg.EspeakWordsPer
	if wpm <= 0 {
		wpm = 150
	}
	return &EspeakSpeaker{cliPath: cliPath, wpm: wpm}, nil
}

func (e *EspeakSpeaker) Name() string { return "espeak" }

func (e *EspeakSpeaker) Online() bool { return false }

func (e *EspeakSpeaker) Speak(ctx context.Context, text string, tag lang.Tag) (Speech, error) {
	cmd := exec.CommandContext(ctx, e.cliPath,
		"-v", espeakVoice(tag),
		"-s", strconv.Itoa(e.wpm),
		"--stdout",
		text,
	)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	stderr := newTailBuffer(4 << 10)
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Speech{}, ctx.Err()
		}
		return Speech{}, errors.Errorf("espeak-ng failed: %v %s", err, stderr.String())
	}
	if _, _, err := audio.ParseWAV(stdout.Bytes()); err != nil {
		return Speech{}, errors.Wrap(err, "espeak-ng output")
	}
	return Speech{Audio: stdout.Bytes(), Format: audio.FormatWAV, Provider: e.Name()}, nil
}

func espeakVoice(tag lang.Tag) string {
	switch base := tag.Base(); base {
	case "", "en":
		return "en"
	default:
		return base
	}
}

type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = 16 << 10
	}
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

// injectWhisperLibraryEnv points the dynamic loader at a lib directory shipped
// next to the whisper binary.
func injectWhisperLibraryEnv(cmd *exec.Cmd, toolPath string) {
	if cmd == nil {
		return
	}
	toolPath = strings.TrimSpace(toolPath)
	if toolPath == "" {
		return
	}

	toolDir := filepath.Dir(toolPath)
	candidates := []string{
		filepath.Clean(filepath.Join(toolDir, "..", "lib")),
		filepath.Clean(filepath.Join(toolDir, "lib")),
	}
	libDir := ""
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && info.IsDir() {
			libDir = candidate
			break
		}
	}
	if libDir == "" {
		return
	}

	env := cmd.Env
	if len(env) == 0 {
		env = os.Environ()
	}
	env = prependPathEnv(env, "LD_LIBRARY_PATH", libDir)
	env = prependPathEnv(env, "DYLD_FALLBACK_LIBRARY_PATH", libDir)
	cmd.Env = env
}

func prependPathEnv(env []string, key, value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return env
	}
	prefix := key + "="
	for i := range env {
		if !strings.HasPrefix(env[i], prefix) {
			continue
		}
		current := strings.TrimPrefix(env[i], prefix)
		if pathListContains(current, value) {
			return env
		}
		if strings.TrimSpace(current) == "" {
			env[i] = prefix + value
		} else {
			env[i] = prefix + value + ":" + current
		}
		return env
	}
	return append(env, prefix+value)
}

func pathListContains(pathList, value string) bool {
	value = filepath.Clean(strings.TrimSpace(value))
	if value == "" {
		return false
	}
	for _, item := range strings.Split(pathList, ":") {
		if filepath.Clean(strings.TrimSpace(item)) == value {
			return true
		}
	}
	return false
}
