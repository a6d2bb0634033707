package capture

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// CaptureDesktop grabs the full virtual screen as PNG.
//
// macOS uses the native screencapture tool. On Linux the backend depends on
// the display server: grim on Wayland, scrot (falling back to ImageMagick's
// import) on X11. Other platforms are rejected.
func CaptureDesktop(ctx context.Context) (Image, error) {
	switch runtime.GOOS {
	case "darwin":
		return captureMacOS(ctx)
	case "linux":
		if os.Getenv("WAYLAND_DISPLAY") != "" {
			return captureWayland(ctx)
		}
		return captureX11(ctx)
	default:
		return Image{}, fmt.Errorf("%w: desktop capture not supported on %s", ErrCapture, runtime.GOOS)
	}
}

func captureMacOS(ctx context.Context) (Image, error) {
	tmp, err := tempPNGPath()
	if err != nil {
		return Image{}, err
	}
	defer os.Remove(tmp)

	cmd := exec.CommandContext(ctx, "screencapture", "-x", "-t", "png", tmp)
	if out, err := cmd.CombinedOutput(); err != nil {
		return Image{}, fmt.Errorf("%w: screencapture: %v (%s)", ErrCapture, err, out)
	}
	data, err := os.ReadFile(tmp)
	if err != nil {
		return Image{}, fmt.Errorf("%w: reading screencapture output: %v", ErrCapture, err)
	}
	return newImage(data)
}

func captureWayland(ctx context.Context) (Image, error) {
	// grim with no arguments captures all outputs; "-" writes PNG to stdout.
	out, err := exec.CommandContext(ctx, "grim", "-").Output()
	if err != nil {
		return Image{}, fmt.Errorf("%w: grim: %v", ErrCapture, err)
	}
	return newImage(out)
}

func captureX11(ctx context.Context) (Image, error) {
	if _, err := exec.LookPath("scrot"); err == nil {
		out, err := exec.CommandContext(ctx, "scrot", "-").Output()
		if err != nil {
			return Image{}, fmt.Errorf("%w: scrot: %v", ErrCapture, err)
		}
		return newImage(out)
	}
	out, err := exec.CommandContext(ctx, "import", "-window", "root", "png:-").Output()
	if err != nil {
		return Image{}, fmt.Errorf("%w: no usable X11 screenshot tool (tried scrot, import): %v", ErrCapture, err)
	}
	return newImage(out)
}

func tempPNGPath() (string, error) {
	f, err := os.CreateTemp("", "contextshot-*.png")
	if err != nil {
		return "", fmt.Errorf("%w: creating temp file: %v", ErrCapture, err)
	}
	path := f.Name()
	f.Close()
	return filepath.Clean(path), nil
}
