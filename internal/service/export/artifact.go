package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/soulbot/soulbot/backend/internal/model/chat"
)

var ErrNoArtifact = errors.New("no transcript artifact found")

type storedRecord struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// Latest returns the most recently modified transcript artifact in dir.
func Latest(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, artifactPrefix+"*"+artifactExt))
	if err != nil {
		return "", err
	}

	var (
		newest  string
		newestT time.Time
	)
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if newest == "" || info.ModTime().After(newestT) {
			newest, newestT = path, info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("%w in %s", ErrNoArtifact, dir)
	}
	return newest, nil
}

// Load reads an artifact back into records. List-valued content is joined with single spaces.
func Load(path string) ([]chat.Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var stored []storedRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	records := make([]chat.Record, 0, len(stored))
	for _, s := range stored {
		records = append(records, chat.Record{Role: chat.Role(s.Role), Content: flattenContent(s.Content)})
	}
	return records, nil
}

// SnapshotFromRecords rebuilds a text-only snapshot from persisted records.
func SnapshotFromRecords(sessionID string, records []chat.Record) chat.Snapshot {
	turns := make([]chat.Turn, 0, len(records))
	for _, r := range records {
		turns = append(turns, chat.NewTurn(r.Role, chat.TextPart(r.Content)))
	}
	return chat.Snapshot{SessionID: sessionID, Turns: turns, TakenAt: time.Now().UTC()}
}

func flattenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		parts := make([]string, 0, len(items))
		for _, item := range items {
			var s string
			if err := json.Unmarshal(item, &s); err == nil {
				parts = append(parts, s)
				continue
			}
			parts = append(parts, chat.ImagePlaceholder)
		}
		return strings.Join(parts, " ")
	}

	return string(raw)
}
