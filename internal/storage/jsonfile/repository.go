// Package jsonfile stores the ledger as a single JSON object keyed by title.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/italolelis/loan_downloader/internal/storage"
)

// Repository reads and rewrites the whole ledger file. Writes go through a temp file and a
// rename so concurrent readers never observe a partial document.
type Repository struct {
	path string
	mu   sync.RWMutex
}

func NewRepository(path string) *Repository {
	return &Repository{path: path}
}

// Load returns an empty ledger when the file does not exist yet.
func (r *Repository) Load(_ context.Context) (storage.Ledger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return storage.Ledger{}, nil
		}

		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	ledger := storage.Ledger{}
	if len(data) == 0 {
		return ledger, nil
	}

	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, fmt.Errorf("failed to parse ledger %s: %w", r.path, err)
	}

	for title, rec := range ledger {
		if rec == nil {
			return nil, fmt.Errorf("ledger entry %q is null", title)
		}

		if rec.Title == "" {
			rec.Title = title
		}
	}

	return ledger, nil
}

func (r *Repository) Save(_ context.Context, ledger storage.Ledger) error {
	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to write ledger: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to close ledger: %w", err)
	}

	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to replace ledger: %w", err)
	}

	return nil
}
