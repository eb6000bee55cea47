package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Saved describes a persisted audio file.
type Saved struct {
	Filename string
	Path     string
}

// Store writes synthesized audio into a directory under generated names.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore creates dir if needed.
func NewStore(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("audio storage dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create audio storage dir %s", dir)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string { return s.dir }

// Save writes data as tts_<id>_<unix>.<ext>. Existing files are never overwritten.
func (s *Store) Save(data []byte, format Format) (Saved, error) {
	for attempt := 0; attempt < 3; attempt++ {
		name := fmt.Sprintf("tts_%s_%d%s", uuid.NewString()[:8], s.now().Unix(), format.Extension())
		path := filepath.Join(s.dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return Saved{}, errors.Wrap(err, "create audio file")
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return Saved{}, errors.Wrap(err, "write audio file")
		}
		if err := f.Close(); err != nil {
			return Saved{}, errors.Wrap(err, "close audio file")
		}
		return Saved{Filename: name, Path: path}, nil
	}
	return Saved{}, errors.New("could not allocate a unique audio filename")
}

// Open returns the path of a previously saved file. Names that escape the
// storage directory are rejected.
func (s *Store) Open(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return "", errors.Errorf("invalid audio filename %q", filename)
	}
	path := filepath.Join(s.dir, filename)
	if _, err := os.Stat(path); err != nil {
		return "", errors.Wrap(err, "stat audio file")
	}
	return path, nil
}
