package docstore

import (
	"encoding/base64"
	"fmt"
	"html"
	"strings"
)

// Rendered documents are self-contained HTML files: a two-column table where
// column 1 holds the timestamped context line and column 2 the screenshot
// embedded as a base64 data URI, scaled to a fixed display width. Appends
// splice a new row in front of the constant trailer, so a document is always
// a complete, openable file between writes.

// displayWidthPx is the fixed rendering width of the screenshot column.
const displayWidthPx = 460

// rowMarker opens every record row. Row counting on re-open depends on it,
// so it must never appear in rendered context text (html.EscapeString
// guarantees that: the text cannot contain a raw '<').
const rowMarker = `<tr class="shot">`

const docTrailer = "</tbody></table>\n</body>\n</html>\n"

func docHeader(title string) string {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", html.EscapeString(title))
	sb.WriteString(`<style>
body { font-family: sans-serif; margin: 24px; }
h1 { text-align: center; font-size: 22px; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #999; padding: 8px; vertical-align: top; }
td.ctx { width: 40%; word-break: break-word; }
</style>
</head>
<body>
`)
	fmt.Fprintf(&sb, "<h1>%s</h1>\n", html.EscapeString(title))
	sb.WriteString("<table><thead><tr><th>Context (with timestamp)</th><th>Screenshot</th></tr></thead><tbody>\n")
	return sb.String()
}

func renderRow(rec Record) string {
	img := base64.StdEncoding.EncodeToString(rec.Image.PNG)
	return fmt.Sprintf(
		"%s<td class=\"ctx\">%s</td><td><img width=\"%d\" alt=\"screenshot %dx%d\" src=\"data:image/png;base64,%s\"></td></tr>\n",
		rowMarker,
		html.EscapeString(rec.Context),
		displayWidthPx,
		rec.Image.Width, rec.Image.Height,
		img,
	)
}

func countRows(content []byte) int {
	return strings.Count(string(content), rowMarker)
}

func documentTitle(path string) string {
	title := "Context + Screenshot Log"
	if part := partSuffix(path); part != "" {
		title += " (" + part + ")"
	}
	return title
}
