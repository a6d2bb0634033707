// Package coordinator is the single serialization point for all document
// writes and status updates. Manual captures, poller ticks, and one-off web
// captures all funnel through LogCapture, so rows are appended in lock
// order with no interleaving, and rollover decisions are never raced.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ybartosh/contextshot/internal/capture"
	"github.com/ybartosh/contextshot/internal/docstore"
	"github.com/ybartosh/contextshot/internal/status"
	"github.com/ybartosh/contextshot/internal/storage"
)

const timestampLayout = "2006-01-02 15:04:05"

// DocumentStore abstracts the rolling document series.
type DocumentStore interface {
	Append(rec docstore.Record) (int, error)
	CurrentDocumentName() string
	CurrentRowCount() int
}

// CaptureIndex records metadata for every appended row.
type CaptureIndex interface {
	SaveCapture(c storage.Capture) error
}

// Coordinator owns the document store and the capture index. At most one
// goroutine is inside the locked section at a time; the capture itself runs
// before the lock is taken so a slow screenshot never blocks other
// producers.
type Coordinator struct {
	mu     sync.Mutex
	docs   DocumentStore
	index  CaptureIndex // optional; nil disables history indexing
	status *status.Reporter

	now func() time.Time
}

// New creates a Coordinator. index may be nil.
func New(docs DocumentStore, index CaptureIndex, reporter *status.Reporter) *Coordinator {
	return &Coordinator{
		docs:   docs,
		index:  index,
		status: reporter,
		now:    time.Now,
	}
}

// LogCapture invokes fn (outside the lock), then appends the result as a
// timestamped row and publishes the outcome to the status reporter. It
// returns the row count of the document that received the record.
//
// A capture failure updates the status and leaves the store untouched.
// A persistence failure updates the status and is returned to the caller;
// neither is retried here.
func (c *Coordinator) LogCapture(ctx context.Context, target capture.Target, contextText string, fn capture.Func) (int, error) {
	img, err := fn(ctx)
	if err != nil {
		c.reportFailure(target, err)
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	rec := docstore.Record{
		Context:   formatContext(now, contextText),
		Timestamp: now,
		Image:     img,
	}

	rowCount, err := c.docs.Append(rec)
	if err != nil {
		c.reportFailure(target, err)
		return 0, err
	}

	if c.index != nil {
		entry := storage.Capture{
			ID:         uuid.New().String(),
			CapturedAt: now,
			Target:     target.String(),
			Context:    contextText,
			Document:   c.docs.CurrentDocumentName(),
			Row:        rowCount,
			Width:      img.Width,
			Height:     img.Height,
			SizeBytes:  len(img.PNG),
		}
		if ierr := c.index.SaveCapture(entry); ierr != nil {
			err = fmt.Errorf("%w: indexing capture: %v", docstore.ErrPersistence, ierr)
			c.reportFailure(target, err)
			return rowCount, err
		}
	}

	c.status.Update(func(s *status.Snapshot) {
		s.LastCaptureTime = now
		s.LastError = ""
		s.LastTarget = target.String()
		s.CurrentDocument = c.docs.CurrentDocumentName()
		s.RowsInCurrentDocument = rowCount
	})
	return rowCount, nil
}

// Status returns the reporter so control surfaces can read and the poller
// lifecycle can publish its own fields.
func (c *Coordinator) Status() *status.Reporter {
	return c.status
}

func (c *Coordinator) reportFailure(target capture.Target, err error) {
	now := c.now()
	c.status.Update(func(s *status.Snapshot) {
		s.LastCaptureTime = now
		s.LastError = err.Error()
		s.LastTarget = target.String()
	})
}

// formatContext renders the first column of a row: timestamp, separator,
// then the user's context or a placeholder.
func formatContext(now time.Time, contextText string) string {
	text := strings.TrimSpace(contextText)
	if text == "" {
		text = "(no context provided)"
	}
	return now.Format(timestampLayout) + " — " + text
}
