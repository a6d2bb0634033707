// Package capture produces PNG screenshots of either the local desktop or a
// rendered web page. Backends shell out to platform tools (screencapture,
// grim, scrot, headless Chrome), so every capture is potentially slow;
// callers are expected to invoke them outside any lock.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"strings"
)

// ErrCapture wraps all backend failures so callers can classify them
// with errors.Is without caring which tool failed.
var ErrCapture = errors.New("capture failed")

// Target describes what to capture. The zero value is the full desktop;
// a non-empty URL selects a headless render of that page.
type Target struct {
	URL string
}

// Desktop returns the full-desktop target.
func Desktop() Target {
	return Target{}
}

// Website returns a target for rawURL. Only http and https URLs are accepted.
func Website(rawURL string) (Target, error) {
	u := strings.TrimSpace(rawURL)
	lower := strings.ToLower(u)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return Target{}, fmt.Errorf("target URL must start with http:// or https://, got %q", rawURL)
	}
	return Target{URL: u}, nil
}

// IsDesktop reports whether t is the full-desktop target.
func (t Target) IsDesktop() bool {
	return t.URL == ""
}

func (t Target) String() string {
	if t.IsDesktop() {
		return "desktop"
	}
	return t.URL
}

// Image is a captured screenshot: PNG bytes plus decoded pixel dimensions.
type Image struct {
	PNG    []byte
	Width  int
	Height int
}

// Func is a zero-argument capture operation bound to a fixed target.
type Func func(ctx context.Context) (Image, error)

// ForTarget returns a Func bound to t.
func ForTarget(t Target) Func {
	if t.IsDesktop() {
		return CaptureDesktop
	}
	return func(ctx context.Context) (Image, error) {
		img, _, err := CaptureWebsite(ctx, t.URL)
		return img, err
	}
}

// newImage validates data as PNG and records its dimensions.
func newImage(data []byte) (Image, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("%w: backend produced invalid PNG: %v", ErrCapture, err)
	}
	return Image{PNG: data, Width: cfg.Width, Height: cfg.Height}, nil
}
