package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Capture is one index entry describing a record appended to a document.
// The image itself lives in the document; the index keeps metadata only, so
// history queries never have to open rendered documents.
type Capture struct {
	ID         string
	CapturedAt time.Time
	Target     string
	Context    string
	Document   string
	Row        int
	Width      int
	Height     int
	SizeBytes  int
}
