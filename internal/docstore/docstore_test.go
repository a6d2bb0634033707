package docstore

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ybartosh/contextshot/internal/capture"
)

func testImage(t *testing.T) capture.Image {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encoding test PNG: %v", err)
	}
	return capture.Image{PNG: buf.Bytes(), Width: 2, Height: 2}
}

func testRecord(t *testing.T, context string) Record {
	t.Helper()
	return Record{Context: context, Timestamp: time.Now(), Image: testImage(t)}
}

func readDoc(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func TestAppendCreatesDocument(t *testing.T) {
	base := filepath.Join(t.TempDir(), "ContextShots.html")
	s := New(base, 0)

	n, err := s.Append(testRecord(t, "2025-01-02 10:00:00 — first"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if n != 1 {
		t.Errorf("row count = %d, want 1", n)
	}
	if got := s.CurrentDocumentName(); got != "ContextShots.html" {
		t.Errorf("CurrentDocumentName = %q", got)
	}

	content := readDoc(t, base)
	if !strings.Contains(content, "first") {
		t.Error("document missing appended context")
	}
	if !strings.Contains(content, "data:image/png;base64,") {
		t.Error("document missing embedded image")
	}
	if !strings.HasSuffix(content, docTrailer) {
		t.Error("document does not end with trailer")
	}
}

func TestAppendEscapesContext(t *testing.T) {
	base := filepath.Join(t.TempDir(), "shots.html")
	s := New(base, 0)

	if _, err := s.Append(testRecord(t, `<script>alert("x")</script>`)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	content := readDoc(t, base)
	if strings.Contains(content, "<script>") {
		t.Error("context was not HTML-escaped")
	}
	if countRows([]byte(content)) != 1 {
		t.Errorf("row count after escape = %d, want 1", countRows([]byte(content)))
	}
}

func TestRowCountRecoveredOnReopen(t *testing.T) {
	base := filepath.Join(t.TempDir(), "shots.html")

	s1 := New(base, 0)
	for i := 1; i <= 3; i++ {
		if _, err := s1.Append(testRecord(t, fmt.Sprintf("row %d", i))); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	// A new store over the same base must resume at row 4, not restart.
	s2 := New(base, 0)
	n, err := s2.Append(testRecord(t, "row 4"))
	if err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	if n != 4 {
		t.Errorf("row count after reopen = %d, want 4", n)
	}
}

func TestRolloverAtCapacity(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "ContextShots.html")
	s := New(base, DefaultCapacity)

	for i := 1; i <= DefaultCapacity; i++ {
		n, err := s.Append(testRecord(t, fmt.Sprintf("2025-01-02 10:00:00 — c%d", i)))
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		if n != i {
			t.Fatalf("row count = %d, want %d", n, i)
		}
	}

	doc1 := readDoc(t, base)
	if got := countRows([]byte(doc1)); got != DefaultCapacity {
		t.Fatalf("document 1 rows = %d, want %d", got, DefaultCapacity)
	}
	if !strings.Contains(doc1, "— c1<") {
		t.Error("document 1 missing first context")
	}

	// Record 91 rolls over into a fresh part.
	n, err := s.Append(testRecord(t, "2025-01-02 11:00:00 — c91"))
	if err != nil {
		t.Fatalf("Append 91: %v", err)
	}
	if n != 1 {
		t.Errorf("row count in new document = %d, want 1", n)
	}
	if got := s.CurrentDocumentName(); got != "ContextShots (2).html" {
		t.Errorf("CurrentDocumentName after rollover = %q", got)
	}

	doc2 := readDoc(t, filepath.Join(dir, "ContextShots (2).html"))
	if got := countRows([]byte(doc2)); got != 1 {
		t.Errorf("document 2 rows = %d, want 1", got)
	}
	if !strings.Contains(doc2, "c91") {
		t.Error("document 2 missing c91")
	}
	if !strings.Contains(doc2, "Part 2") {
		t.Error("document 2 title missing part suffix")
	}

	// Document 1 stays sealed.
	if got := countRows([]byte(readDoc(t, base))); got != DefaultCapacity {
		t.Errorf("document 1 rows after rollover = %d, want %d", got, DefaultCapacity)
	}
}

func TestRolloverSkipsExistingSuffixes(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "shots.html")

	// A leftover "(2)" from an earlier run must not be overwritten.
	if err := os.WriteFile(filepath.Join(dir, "shots (2).html"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(base, 2)
	for i := 1; i <= 3; i++ {
		if _, err := s.Append(testRecord(t, fmt.Sprintf("row %d", i))); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	if got := s.CurrentDocumentName(); got != "shots (3).html" {
		t.Errorf("CurrentDocumentName = %q, want shots (3).html", got)
	}
	if got := readDoc(t, filepath.Join(dir, "shots (2).html")); got != "old" {
		t.Error("existing shots (2).html was overwritten")
	}
}

func TestOpenFullBaseStartsNewPart(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "shots.html")

	s1 := New(base, 2)
	for i := 1; i <= 2; i++ {
		if _, err := s1.Append(testRecord(t, "x")); err != nil {
			t.Fatal(err)
		}
	}

	// Fresh store over a full base file: first append goes straight to part 2.
	s2 := New(base, 2)
	n, err := s2.Append(testRecord(t, "y"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if n != 1 {
		t.Errorf("row count = %d, want 1", n)
	}
	if got := s2.CurrentDocumentName(); got != "shots (2).html" {
		t.Errorf("CurrentDocumentName = %q", got)
	}
}

func TestAppendPersistenceError(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "shots.html")
	s := New(base, 0)

	if _, err := s.Append(testRecord(t, "ok")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Corrupt the trailer so the next append cannot splice a row.
	if err := os.WriteFile(base, []byte("<html>damaged"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := s.Append(testRecord(t, "broken"))
	if err == nil {
		t.Fatal("Append on damaged document succeeded")
	}
	if !errors.Is(err, ErrPersistence) {
		t.Errorf("error %v should wrap ErrPersistence", err)
	}
}

func TestCurrentBeforeFirstAppend(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "shots.html"), 0)
	if got := s.CurrentDocumentName(); got != "shots.html" {
		t.Errorf("CurrentDocumentName = %q", got)
	}
	if got := s.CurrentRowCount(); got != 0 {
		t.Errorf("CurrentRowCount = %d, want 0", got)
	}
}
