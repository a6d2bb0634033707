// Package docstore persists capture records as rows of a bounded,
// human-readable document and rolls over to a freshly named document once
// the capacity is reached. A sealed (full) document is never written again.
//
// The Store is deliberately NOT safe for concurrent use: the write
// coordinator owns it and serializes every call.
package docstore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ybartosh/contextshot/internal/capture"
)

// ErrPersistence wraps every storage failure (open, write, rollover) so
// callers can classify them with errors.Is. Never retried automatically.
var ErrPersistence = errors.New("persistence failure")

// DefaultCapacity is the row limit per document before rollover.
const DefaultCapacity = 90

// Record is one logged entry. Immutable once created.
type Record struct {
	Context   string
	Timestamp time.Time
	Image     capture.Image
}

type document struct {
	path string
	rows int
}

// Store owns the current document of a rolling document series.
type Store struct {
	basePath string
	capacity int
	current  *document
}

// New returns a Store writing the series anchored at basePath
// (e.g. ~/Documents/ContextShots.html). capacity <= 0 selects
// DefaultCapacity. No file is touched until the first Append.
func New(basePath string, capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{basePath: basePath, capacity: capacity}
}

// Append writes rec as a new row to the current document and returns the
// document's row count after the write. If the current document is at
// capacity it is sealed and a fresh document with the next free " (N)"
// suffix receives the record as row 1.
func (s *Store) Append(rec Record) (int, error) {
	if s.current == nil {
		if err := s.open(); err != nil {
			return 0, err
		}
	}
	if s.current.rows >= s.capacity {
		if err := s.rollover(); err != nil {
			return 0, err
		}
	}
	if err := s.appendRow(rec); err != nil {
		return 0, err
	}
	return s.current.rows, nil
}

// CurrentDocumentName returns the file name of the current document.
func (s *Store) CurrentDocumentName() string {
	if s.current == nil {
		return filepath.Base(s.basePath)
	}
	return filepath.Base(s.current.path)
}

// CurrentRowCount returns the number of records in the current document.
func (s *Store) CurrentRowCount() int {
	if s.current == nil {
		return 0
	}
	return s.current.rows
}

// open binds the store to the right document on first use: the base file if
// absent or not yet full, otherwise the next free disambiguated name. An
// existing document's row count is recovered from its rendered table.
func (s *Store) open() error {
	content, err := os.ReadFile(s.basePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s.create(s.basePath)
	case err != nil:
		return fmt.Errorf("%w: opening %s: %v", ErrPersistence, s.basePath, err)
	}

	rows := countRows(content)
	if rows >= s.capacity {
		return s.create(NextAvailableName(s.basePath, fileExists))
	}
	s.current = &document{path: s.basePath, rows: rows}
	return nil
}

// rollover seals the current document and creates the next one in the series.
func (s *Store) rollover() error {
	return s.create(NextAvailableName(s.basePath, fileExists))
}

func (s *Store) create(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: creating document directory: %v", ErrPersistence, err)
	}
	content := docHeader(documentTitle(path)) + docTrailer
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("%w: creating document %s: %v", ErrPersistence, path, err)
	}
	s.current = &document{path: path, rows: 0}
	return nil
}

func (s *Store) appendRow(rec Record) error {
	content, err := os.ReadFile(s.current.path)
	if err != nil {
		return fmt.Errorf("%w: reading document %s: %v", ErrPersistence, s.current.path, err)
	}
	trailer := []byte(docTrailer)
	if !bytes.HasSuffix(content, trailer) {
		return fmt.Errorf("%w: document %s is damaged (missing trailer)", ErrPersistence, s.current.path)
	}

	body := content[:len(content)-len(trailer)]
	out := make([]byte, 0, len(content)+len(rec.Image.PNG)*2)
	out = append(out, body...)
	out = append(out, renderRow(rec)...)
	out = append(out, trailer...)

	if err := os.WriteFile(s.current.path, out, 0o644); err != nil {
		return fmt.Errorf("%w: writing document %s: %v", ErrPersistence, s.current.path, err)
	}
	s.current.rows++
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
