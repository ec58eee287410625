package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"MorningPulse/internal/domain"
	"MorningPulse/internal/ports"
)

// FileFingerprints keeps fingerprints in a single JSON document on disk.
// Writes replace the file via rename.
type FileFingerprints struct {
	mu     sync.Mutex
	path   string
	loaded bool
	items  []domain.Fingerprint
}

var _ ports.FingerprintStore = (*FileFingerprints)(nil)

// NewFileFingerprints points the store at path; the file is created lazily.
func NewFileFingerprints(path string) *FileFingerprints {
	return &FileFingerprints{path: path}
}

// Load returns fingerprints published on or after since.
func (s *FileFingerprints) Load(_ context.Context, since time.Time) ([]domain.Fingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.read(); err != nil {
		return nil, err
	}

	cutoff := dateOnly(since)
	var out []domain.Fingerprint
	for _, fp := range s.items {
		if dateOnly(fp.PublishedDate) >= cutoff {
			out = append(out, fp)
		}
	}
	return out, nil
}

// Append adds one fingerprint and rewrites the file.
func (s *FileFingerprints) Append(_ context.Context, fp domain.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.read(); err != nil {
		return err
	}
	s.items = append(s.items, fp)
	return s.write()
}

// DeleteBefore drops fingerprints older than day.
func (s *FileFingerprints) DeleteBefore(_ context.Context, day time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.read(); err != nil {
		return err
	}

	cutoff := dateOnly(day)
	kept := s.items[:0]
	for _, fp := range s.items {
		if dateOnly(fp.PublishedDate) >= cutoff {
			kept = append(kept, fp)
		}
	}
	if len(kept) == len(s.items) {
		return nil
	}
	s.items = kept
	return s.write()
}

func (s *FileFingerprints) read() error {
	if s.loaded {
		return nil
	}

	raw, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.items = nil
	case err != nil:
		return fmt.Errorf("read fingerprints: %w", err)
	case len(raw) == 0:
		s.items = nil
	default:
		if err := json.Unmarshal(raw, &s.items); err != nil {
			return fmt.Errorf("decode fingerprints %s: %w", s.path, err)
		}
	}
	s.loaded = true
	return nil
}

func (s *FileFingerprints) write() error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create fingerprint dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(s.items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fingerprints: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write fingerprints: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace fingerprints: %w", err)
	}
	return nil
}
