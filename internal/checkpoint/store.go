package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"shapeexport/internal/models"
)

// ErrCorrupt marks a checkpoint file that exists but cannot be parsed.
// Callers restart the shape from page 1 instead of failing the run.
var ErrCorrupt = errors.New("checkpoint file corrupt")

// Store persists per-shape export checkpoints as JSON files. One file per
// shape; its presence at run start signals a resumable prior run. A single
// run owns its shape's file exclusively; two concurrent exports of the same
// shape are not supported.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Load reads the checkpoint for a shape. Returns (nil, nil) when none
// exists and ErrCorrupt when the file cannot be parsed.
func (s *Store) Load(shapeName string) (*models.ExportCheckpoint, error) {
	data, err := os.ReadFile(s.path(shapeName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var checkpoint models.ExportCheckpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if checkpoint.LastCompletedPage < 1 {
		return nil, fmt.Errorf("%w: lastCompletedPage %d", ErrCorrupt, checkpoint.LastCompletedPage)
	}

	slog.Debug("checkpoint loaded",
		"shape", shapeName,
		"last_completed_page", checkpoint.LastCompletedPage,
		"records", len(checkpoint.RecordsSoFar))
	return &checkpoint, nil
}

// Save overwrites the shape's checkpoint. The write goes through a temp
// file and rename so a crash mid-write never corrupts the prior snapshot.
func (s *Store) Save(checkpoint *models.ExportCheckpoint) error {
	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	path := s.path(checkpoint.ShapeName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}

	slog.Debug("checkpoint saved",
		"shape", checkpoint.ShapeName,
		"last_completed_page", checkpoint.LastCompletedPage,
		"records", len(checkpoint.RecordsSoFar))
	return nil
}

// Delete removes the shape's checkpoint. Deleting a missing checkpoint is
// not an error.
func (s *Store) Delete(shapeName string) error {
	err := os.Remove(s.path(shapeName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

func (s *Store) path(shapeName string) string {
	return filepath.Join(s.dir, SafeName(shapeName)+".checkpoint.json")
}

// SafeName turns a shape name into a filesystem-safe file stem.
func SafeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		out = "shape"
	}
	return out
}
