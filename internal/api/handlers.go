// Package api is the local HTTP control surface: manual captures, poller
// lifecycle, status, and capture history. It binds to 127.0.0.1 only and
// carries no authentication.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ybartosh/contextshot/internal/capture"
	"github.com/ybartosh/contextshot/internal/coordinator"
	"github.com/ybartosh/contextshot/internal/docstore"
	"github.com/ybartosh/contextshot/internal/poller"
	"github.com/ybartosh/contextshot/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Delay and interval clamps, matching the limits the UI enforces.
const (
	maxDelay    = 60 * time.Second
	minInterval = 5 * time.Second
	maxInterval = 86400 * time.Second
)

// Capture entry points, overridable in tests so handlers can be exercised
// without real screenshot tooling.
var (
	captureForTarget = capture.ForTarget
	captureWebsite   = capture.CaptureWebsite
)

// HistoryStore abstracts the capture index for the API layer.
type HistoryStore interface {
	ListCaptures(limit int) ([]storage.Capture, error)
}

type Deps struct {
	Coordinator *coordinator.Coordinator
	Poller      *poller.Scheduler
	History     HistoryStore // optional; if nil, /history returns an empty list
}

// NewHandler builds the control-surface router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/status", handleStatus(deps))
	r.Get("/history", handleHistory(deps))
	r.Post("/capture", handleCapture(deps))
	r.Post("/poll/start", handlePollStart(deps))
	r.Post("/poll/stop", handlePollStop(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Coordinator.Status().Snapshot())
	}
}

type CaptureRequest struct {
	Context      string  `json:"context"`
	DelaySeconds float64 `json:"delay_seconds"`
	URL          string  `json:"url,omitempty"`
}

type CaptureResponse struct {
	Document string `json:"document"`
	Row      int    `json:"row"`
	Target   string `json:"target"`
	Title    string `json:"title,omitempty"`
}

// handleCapture performs a one-off capture: the full desktop by default, or
// a website render when url is set. The delay is honored here, before the
// capture primitive is invoked, so the user has time to switch windows.
func handleCapture(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req CaptureRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		target := capture.Desktop()
		if req.URL != "" {
			var err error
			target, err = capture.Website(req.URL)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
		}

		delay := clampDelay(req.DelaySeconds)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		contextText := req.Context
		if contextText == "" && !target.IsDesktop() {
			contextText = "Manual website capture of " + target.URL
		}

		var title string
		fn := captureForTarget(target)
		if !target.IsDesktop() {
			fn = func(ctx context.Context) (capture.Image, error) {
				img, t, err := captureWebsite(ctx, target.URL)
				title = t
				return img, err
			}
		}

		row, err := deps.Coordinator.LogCapture(r.Context(), target, contextText, fn)
		if err != nil {
			writeCaptureError(w, err)
			return
		}

		snap := deps.Coordinator.Status().Snapshot()
		writeJSON(w, http.StatusOK, CaptureResponse{
			Document: snap.CurrentDocument,
			Row:      row,
			Target:   target.String(),
			Title:    title,
		})
	}
}

type PollStartRequest struct {
	URL             string  `json:"url,omitempty"`
	IntervalSeconds float64 `json:"interval_seconds"`
}

func handlePollStart(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req PollStartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		target := capture.Desktop()
		if req.URL != "" {
			var err error
			target, err = capture.Website(req.URL)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
		}

		cfg := poller.Config{
			Target:   target,
			Interval: clampInterval(req.IntervalSeconds),
		}
		if err := deps.Poller.Start(cfg); err != nil {
			if errors.Is(err, poller.ErrAlreadyRunning) {
				httpError(w, http.StatusConflict, "already_running", "%v; stop it first to change target or interval", err)
				return
			}
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "started",
			"target":   cfg.Target.String(),
			"interval": cfg.Interval.String(),
		})
	}
}

func handlePollStop(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Poller.Stop()
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
	}
}

type HistoryEntry struct {
	ID         string    `json:"id"`
	CapturedAt time.Time `json:"captured_at"`
	Target     string    `json:"target"`
	Context    string    `json:"context,omitempty"`
	Document   string    `json:"document"`
	Row        int       `json:"row"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	SizeBytes  int       `json:"size_bytes"`
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit %q", raw)
				return
			}
			if n > 500 {
				n = 500
			}
			limit = n
		}

		entries := []HistoryEntry{}
		if deps.History != nil {
			captures, err := deps.History.ListCaptures(limit)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "listing captures: %v", err)
				return
			}
			for _, c := range captures {
				entries = append(entries, HistoryEntry{
					ID:         c.ID,
					CapturedAt: c.CapturedAt,
					Target:     c.Target,
					Context:    c.Context,
					Document:   c.Document,
					Row:        c.Row,
					Width:      c.Width,
					Height:     c.Height,
					SizeBytes:  c.SizeBytes,
				})
			}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func writeCaptureError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, capture.ErrCapture):
		httpError(w, http.StatusBadGateway, "capture_error", "%v", err)
	case errors.Is(err, docstore.ErrPersistence):
		httpError(w, http.StatusInternalServerError, "persistence_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func clampDelay(seconds float64) time.Duration {
	d := time.Duration(seconds * float64(time.Second))
	if d < 0 {
		return 0
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}

func clampInterval(seconds float64) time.Duration {
	d := time.Duration(seconds * float64(time.Second))
	if d < minInterval {
		return minInterval
	}
	if d > maxInterval {
		return maxInterval
	}
	return d
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
