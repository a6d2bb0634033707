package capture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

const maxTitleFetchSize = 2 << 20 // 2MB

// chromeBinaries are probed in order for a headless render.
var chromeBinaries = []string{
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"chrome",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
}

// headlessFlags are tried in order; newer Chrome wants --headless=new,
// older builds only understand --headless.
var headlessFlags = []string{"--headless=new", "--headless"}

var titleClient = &http.Client{Timeout: 10 * time.Second}

// CaptureWebsite renders url in a headless browser and returns the screenshot
// together with the page title. The title is fetched over plain HTTP in
// parallel with the render and is best-effort: a fetch failure yields an
// empty title, not an error.
func CaptureWebsite(ctx context.Context, url string) (Image, string, error) {
	var (
		img   Image
		title string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		img, err = renderHeadless(gctx, url)
		return err
	})
	g.Go(func() error {
		title = fetchTitle(gctx, url)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Image{}, "", err
	}
	return img, title, nil
}

func renderHeadless(ctx context.Context, url string) (Image, error) {
	bin, err := findChrome()
	if err != nil {
		return Image{}, err
	}

	tmp, err := tempPNGPath()
	if err != nil {
		return Image{}, err
	}
	defer os.Remove(tmp)

	var lastErr error
	for _, flag := range headlessFlags {
		args := []string{
			flag,
			"--disable-gpu",
			"--no-sandbox",
			"--hide-scrollbars",
			"--window-size=1920,1080",
			"--screenshot=" + tmp,
			url,
		}
		cmd := exec.CommandContext(ctx, bin, args...)
		if out, runErr := cmd.CombinedOutput(); runErr != nil {
			lastErr = fmt.Errorf("%s %s: %v (%s)", bin, flag, runErr, firstLine(out))
			continue
		}
		data, readErr := os.ReadFile(tmp)
		if readErr != nil {
			lastErr = fmt.Errorf("reading screenshot output: %v", readErr)
			continue
		}
		return newImage(data)
	}
	return Image{}, fmt.Errorf("%w: headless render of %s: %v", ErrCapture, url, lastErr)
}

func findChrome() (string, error) {
	for _, name := range chromeBinaries {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: no headless browser found (tried %s)", ErrCapture, strings.Join(chromeBinaries, ", "))
}

// fetchTitle returns the page <title>, or "" if it cannot be determined.
func fetchTitle(ctx context.Context, url string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ""
	}
	resp, err := titleClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxTitleFetchSize))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(findTitle(doc))
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		var sb strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
		}
		return sb.String()
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func firstLine(out []byte) string {
	s := strings.TrimSpace(string(out))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
