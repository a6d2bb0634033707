package capture

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func encodeTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encoding test PNG: %v", err)
	}
	return buf.Bytes()
}

func TestWebsiteTargetValidation(t *testing.T) {
	tests := []struct {
		name    string
		rawURL  string
		wantErr bool
	}{
		{"https", "https://example.com", false},
		{"http", "http://example.com/page", false},
		{"uppercase scheme", "HTTPS://example.com", false},
		{"leading whitespace", "  https://example.com", false},
		{"ftp", "ftp://example.com", true},
		{"bare host", "example.com", true},
		{"empty", "", true},
		{"file scheme", "file:///etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tgt, err := Website(tt.rawURL)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Website(%q) succeeded, want error", tt.rawURL)
				}
				return
			}
			if err != nil {
				t.Fatalf("Website(%q) failed: %v", tt.rawURL, err)
			}
			if tgt.IsDesktop() {
				t.Errorf("Website(%q) produced a desktop target", tt.rawURL)
			}
		})
	}
}

func TestDesktopTarget(t *testing.T) {
	tgt := Desktop()
	if !tgt.IsDesktop() {
		t.Error("Desktop() target should report IsDesktop")
	}
	if got := tgt.String(); got != "desktop" {
		t.Errorf("Desktop().String() = %q, want %q", got, "desktop")
	}

	web, err := Website("https://example.com")
	if err != nil {
		t.Fatalf("Website: %v", err)
	}
	if got := web.String(); got != "https://example.com" {
		t.Errorf("web target String() = %q, want URL", got)
	}
}

func TestNewImageRecordsDimensions(t *testing.T) {
	data := encodeTestPNG(t, 64, 48)
	img, err := newImage(data)
	if err != nil {
		t.Fatalf("newImage: %v", err)
	}
	if img.Width != 64 || img.Height != 48 {
		t.Errorf("dimensions = %dx%d, want 64x48", img.Width, img.Height)
	}
	if !bytes.Equal(img.PNG, data) {
		t.Error("PNG bytes were modified")
	}
}

func TestNewImageRejectsGarbage(t *testing.T) {
	_, err := newImage([]byte("not a png"))
	if err == nil {
		t.Fatal("newImage accepted garbage")
	}
	if !errors.Is(err, ErrCapture) {
		t.Errorf("error %v should wrap ErrCapture", err)
	}
}

func TestFindTitle(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"simple", "<html><head><title>Hello</title></head></html>", "Hello"},
		{"nested text", "<html><head><title>A &amp; B</title></head></html>", "A & B"},
		{"no title", "<html><body><p>x</p></body></html>", ""},
		{"empty title", "<html><head><title></title></head></html>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := html.Parse(strings.NewReader(tt.doc))
			if err != nil {
				t.Fatalf("parsing: %v", err)
			}
			if got := findTitle(doc); got != tt.want {
				t.Errorf("findTitle = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine([]byte("line one\nline two\n")); got != "line one" {
		t.Errorf("firstLine = %q", got)
	}
	if got := firstLine([]byte("  padded  ")); got != "padded" {
		t.Errorf("firstLine = %q", got)
	}
}
