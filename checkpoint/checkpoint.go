// Package checkpoint persists partial scrape progress so an interrupted
// run can resume where it stopped.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/deckcheck/inventory-scraper/models"
)

// ErrNotFound signals that no checkpoint exists at the store's path.
// Absence is an expected state, not a failure.
var ErrNotFound = errors.New("checkpoint not found")

// Store reads and writes one run's checkpoint file.
type Store struct {
	path string
}

// NewStore returns a store bound to path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the checkpoint file location.
func (s *Store) Path() string {
	return s.path
}

// Save replaces the checkpoint with progress. The file is written to a
// temp name in the same directory and renamed into place, so readers
// only ever observe the previous or the new checkpoint, never a torn
// one.
func (s *Store) Save(progress *models.ScrapeProgress) error {
	if progress == nil {
		return errors.New("nil progress")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(progress); err != nil {
		tmp.Close()
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Load reads the checkpoint if present. Cards are normalized on the way
// in so callers see the canonical shape even when the file predates the
// per-condition breakdown. A missing file returns ErrNotFound.
func (s *Store) Load() (*models.ScrapeProgress, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var progress models.ScrapeProgress
	if err := json.Unmarshal(data, &progress); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	for i := range progress.Cards {
		progress.Cards[i].Normalize()
	}
	return &progress, nil
}

// Clear deletes the checkpoint. Clearing an absent checkpoint is a
// no-op.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}
