package audio

import (
	"github.com/gabriel-vasile/mimetype"

	"github.com/antoniostano/voicebot/internal/faults"
)

// Format is an audio container the pipeline accepts or produces.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatOGG  Format = "ogg"
	FormatFLAC Format = "flac"
	FormatWebM Format = "webm"
	FormatM4A  Format = "m4a"
	FormatAAC  Format = "aac"
)

var mimeFormats = []struct {
	mime   string
	format Format
}{
	{"audio/wav", FormatWAV},
	{"audio/mpeg", FormatMP3},
	{"audio/ogg", FormatOGG},
	{"application/ogg", FormatOGG},
	{"audio/flac", FormatFLAC},
	// MediaRecorder uploads sniff as video/webm even when audio-only.
	{"video/webm", FormatWebM},
	{"audio/webm", FormatWebM},
	{"audio/x-m4a", FormatM4A},
	{"audio/mp4", FormatM4A},
	{"video/mp4", FormatM4A},
	{"audio/aac", FormatAAC},
}

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatWAV:
		return "audio/wav"
	case FormatMP3:
		return "audio/mpeg"
	case FormatOGG:
		return "audio/ogg"
	case FormatFLAC:
		return "audio/flac"
	case FormatWebM:
		return "audio/webm"
	case FormatM4A:
		return "audio/mp4"
	case FormatAAC:
		return "audio/aac"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the file extension for f including the dot.
func (f Format) Extension() string {
	if f == "" {
		return ".bin"
	}
	return "." + string(f)
}

// Sniff identifies the container of data from its magic bytes.
func Sniff(data []byte) (Format, bool) {
	if len(data) == 0 {
		return "", false
	}
	mt := mimetype.Detect(data)
	for _, m := range mimeFormats {
		if mt.Is(m.mime) {
			return m.format, true
		}
	}
	return "", false
}

// Validate rejects audio that no recognizer could decode: empty payloads,
// unrecognized containers and WAV files whose headers do not parse.
func Validate(data []byte) (Format, error) {
	if len(data) == 0 {
		return "", faults.Invalid("audio", "empty payload")
	}
	format, ok := Sniff(data)
	if !ok {
		return "", faults.Invalid("audio", "unrecognized audio container ("+mimetype.Detect(data).String()+")")
	}
	if format == FormatWAV {
		if _, _, err := ParseWAV(data); err != nil {
			return "", faults.Invalid("audio", err.Error())
		}
	}
	return format, nil
}
