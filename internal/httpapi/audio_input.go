package httpapi

import (
	"encoding/base64"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/antoniostano/voicebot/internal/protocol"
)

// audioInput is an uploaded utterance plus its form or query fields.
type audioInput struct {
	Audio        []byte
	UserID       string
	CustomerID   string
	Language     string
	PreferOnline *bool
}

// readAudio accepts multipart uploads (field "audio" or "file"), a JSON
// protocol.AudioRequest, or a raw audio body with fields in the query string.
func readAudio(w http.ResponseWriter, r *http.Request) (audioInput, error) {
	if r.Body == nil {
		return audioInput{}, protocol.ErrEmptyBody
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBody)
	defer r.Body.Close()

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		return readMultipartAudio(r)
	case "application/json":
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return audioInput{}, errors.Wrap(err, "read request body")
		}
		var req protocol.AudioRequest
		if err := protocol.Decode(raw, &req); err != nil {
			return audioInput{}, err
		}
		data, err := req.Audio()
		if err != nil {
			return audioInput{}, err
		}
		return audioInput{
			Audio:        data,
			UserID:       strings.TrimSpace(req.UserID),
			CustomerID:   strings.TrimSpace(req.CustomerID),
			Language:     strings.TrimSpace(req.Language),
			PreferOnline: req.PreferOnline,
		}, nil
	default:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return audioInput{}, errors.Wrap(err, "read request body")
		}
		in, err := audioFields(r.URL.Query().Get)
		if err != nil {
			return audioInput{}, err
		}
		in.Audio = data
		return in, nil
	}
}

func readMultipartAudio(r *http.Request) (audioInput, error) {
	if err := r.ParseMultipartForm(maxAudioBody); err != nil {
		return audioInput{}, errors.Wrap(err, "parse multipart form")
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	var (
		file io.ReadCloser
		err  error
	)
	for _, field := range []string{"audio", "file"} {
		file, _, err = r.FormFile(field)
		if err == nil {
			break
		}
	}
	if err != nil {
		return audioInput{}, errors.New(`multipart field "audio" is required`)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return audioInput{}, errors.Wrap(err, "read audio upload")
	}
	in, err := audioFields(r.FormValue)
	if err != nil {
		return audioInput{}, err
	}
	in.Audio = data
	return in, nil
}

func audioFields(get func(string) string) (audioInput, error) {
	in := audioInput{
		UserID:     strings.TrimSpace(get("user_id")),
		CustomerID: strings.TrimSpace(get("customer_id")),
		Language:   strings.TrimSpace(get("language")),
	}
	if raw := strings.TrimSpace(get("prefer_online")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return audioInput{}, errors.Errorf("prefer_online must be a boolean, got %q", raw)
		}
		in.PreferOnline = &v
	}
	return in, nil
}

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
