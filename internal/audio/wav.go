package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// WAVHeader is the subset of a RIFF/WAVE header the pipeline inspects.
type WAVHeader struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	DataSize      uint32
}

// ErrMalformedWAV is returned when a RIFF container cannot be parsed.
var ErrMalformedWAV = errors.New("malformed wav container")

const minWAVSize = 44

// EncodeWAVPCM16LE wraps raw PCM16LE mono audio bytes in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteWAVPCM16LETo(&buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVPCM16LETo writes raw PCM16LE mono audio bytes to out as a WAV stream.
func WriteWAVPCM16LETo(out io.Writer, pcm []byte, sampleRate int) error {
	const (
		numChannels   = 1
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	dataSize := uint32(len(pcm))
	w := bufio.NewWriter(out)
	fields := []any{
		[]byte("RIFF"), uint32(36) + dataSize, []byte("WAVE"),
		[]byte("fmt "), uint32(16), uint16(audioFormat), uint16(numChannels),
		uint32(sampleRate), uint32(sampleRate * numChannels * bitsPerSample / 8),
		uint16(numChannels * bitsPerSample / 8), uint16(bitsPerSample),
		[]byte("data"), dataSize,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return errors.Wrap(err, "write wav header")
		}
	}
	if _, err := w.Write(pcm); err != nil {
		return errors.Wrap(err, "write wav samples")
	}
	return w.Flush()
}

// ParseWAV reads the fmt and data chunks of a RIFF/WAVE container and returns
// the header plus the sample bytes. Unknown chunks are skipped.
func ParseWAV(data []byte) (WAVHeader, []byte, error) {
	var h WAVHeader
	if len(data) <= minWAVSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return h, nil, ErrMalformedWAV
	}
	haveFmt := false
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			if id == "data" && haveFmt {
				// Streaming writers leave the data size unset; take what is there.
				h.DataSize = uint32(len(data) - body)
				return h, data[body:], nil
			}
			return h, nil, errors.Wrapf(ErrMalformedWAV, "chunk %q overruns container", id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return h, nil, errors.Wrap(ErrMalformedWAV, "short fmt chunk")
			}
			h.AudioFormat = binary.LittleEndian.Uint16(data[body : body+2])
			h.Channels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			h.SampleRate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			h.BitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])
			haveFmt = true
		case "data":
			if !haveFmt {
				return h, nil, errors.Wrap(ErrMalformedWAV, "data chunk before fmt")
			}
			h.DataSize = uint32(size)
			return h, data[body : body+size], nil
		}
		pos = body + size + size%2
	}
	return h, nil, errors.Wrap(ErrMalformedWAV, "missing data chunk")
}

// WAVChunk returns the body of the first chunk named id.
func WAVChunk(data []byte, id string) ([]byte, bool) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, false
	}
	pos := 12
	for pos+8 <= len(data) {
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			return nil, false
		}
		if string(data[pos:pos+4]) == id {
			return data[body : body+size], true
		}
		pos = body + size + size%2
	}
	return nil, false
}

// InsertWAVChunk returns a copy of wav with an extra chunk placed before the
// data chunk and the RIFF size updated.
func InsertWAVChunk(wav []byte, id string, body []byte) ([]byte, error) {
	if len(id) != 4 {
		return nil, errors.Errorf("chunk id %q must be four bytes", id)
	}
	idx := bytes.Index(wav, []byte("data"))
	if idx < 12 || string(wav[0:4]) != "RIFF" {
		return nil, ErrMalformedWAV
	}
	chunk := make([]byte, 8, 8+len(body)+1)
	copy(chunk, id)
	binary.LittleEndian.PutUint32(chunk[4:8], uint32(len(body)))
	chunk = append(chunk, body...)
	if len(body)%2 == 1 {
		chunk = append(chunk, 0)
	}

	out := make([]byte, 0, len(wav)+len(chunk))
	out = append(out, wav[:idx]...)
	out = append(out, chunk...)
	out = append(out, wav[idx:]...)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)-8))
	return out, nil
}
