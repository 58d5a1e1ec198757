package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/soulbot/soulbot/backend/internal/model/chat"
)

var ErrPersist = errors.New("persist transcript")

const (
	artifactPrefix = "conversation_"
	artifactExt    = ".json"
	timeLayout     = "20060102_150405"
)

// Writer persists snapshots as flat JSON files in one directory.
type Writer struct {
	dir string
}

// NewWriter returns a writer rooted at dir. The directory is created on first write.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "."
	}
	return &Writer{dir: dir}
}

// Dir returns the artifact directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Persist writes the snapshot and returns the artifact path.
func (w *Writer) Persist(snap chat.Snapshot) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create dir: %v", ErrPersist, err)
	}

	payload, err := json.MarshalIndent(snap.Records(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: encode: %v", ErrPersist, err)
	}

	tmp, err := os.CreateTemp(w.dir, ".conversation-*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: temp file: %v", ErrPersist, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: write: %v", ErrPersist, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: close: %v", ErrPersist, err)
	}

	target := w.uniquePath(artifactName(snap))
	if err := os.Rename(tmpName, target); err != nil {
		return "", fmt.Errorf("%w: rename: %v", ErrPersist, err)
	}
	return target, nil
}

func (w *Writer) uniquePath(name string) string {
	path := filepath.Join(w.dir, name)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return path
	}
	base := strings.TrimSuffix(name, artifactExt)
	for i := 1; ; i++ {
		candidate := filepath.Join(w.dir, fmt.Sprintf("%s_%d%s", base, i, artifactExt))
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
	}
}

func artifactName(snap chat.Snapshot) string {
	name := artifactPrefix + snap.TakenAt.Format(timeLayout)
	if id := sanitizeID(snap.SessionID); id != "" {
		name += "_" + id
	}
	return name + artifactExt
}

func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return -1
		}
	}, id)
}
