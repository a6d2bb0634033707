package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ybartosh/contextshot/internal/capture"
	"github.com/ybartosh/contextshot/internal/poller"
)

// NewMCPServer exposes captures and the poller lifecycle as MCP tools, so
// an agent can snapshot the desktop or a page into the same rolling
// document a human uses.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"contextshot",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("contextshot — capture labeled, timestamped screenshots into a rolling context log."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("capture_screen",
			mcp.WithDescription("Capture the full desktop and append it to the context log with the given label."),
			mcp.WithString("context", mcp.Description("Free-text context to store alongside the screenshot")),
			mcp.WithNumber("delay_seconds", mcp.Description("Seconds to wait before capturing (0-60)")),
		),
		mcpCaptureScreen(deps),
	)

	s.AddTool(
		mcp.NewTool("capture_url",
			mcp.WithDescription("Render a web page headlessly and append the screenshot to the context log."),
			mcp.WithString("url", mcp.Description("http(s) URL to capture"), mcp.Required()),
			mcp.WithString("context", mcp.Description("Free-text context; defaults to a note naming the URL")),
		),
		mcpCaptureURL(deps),
	)

	s.AddTool(
		mcp.NewTool("start_poller",
			mcp.WithDescription("Start capturing a target on a fixed interval. Only one poller may run at a time."),
			mcp.WithString("url", mcp.Description("http(s) URL to poll; omit for the full desktop")),
			mcp.WithNumber("interval_seconds", mcp.Description("Seconds between captures (5-86400)"), mcp.Required()),
		),
		mcpStartPoller(deps),
	)

	s.AddTool(
		mcp.NewTool("stop_poller",
			mcp.WithDescription("Stop the running poller, waiting for an in-flight capture to finish."),
		),
		mcpStopPoller(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"contextshot://status",
			"Capture Status",
			mcp.WithResourceDescription("Last capture outcome and poller state as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStatus(deps),
	)

	return s
}

func mcpCaptureScreen(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		contextText := req.GetString("context", "")
		delay := clampDelay(req.GetFloat("delay_seconds", 0))
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return mcpError("cancelled while waiting for capture delay"), nil
			}
		}

		target := capture.Desktop()
		row, err := deps.Coordinator.LogCapture(ctx, target, contextText, captureForTarget(target))
		if err != nil {
			return mcpError(fmt.Sprintf("capture failed: %v", err)), nil
		}

		snap := deps.Coordinator.Status().Snapshot()
		return mcpText(fmt.Sprintf("Captured desktop as row %d of %s", row, snap.CurrentDocument)), nil
	}
}

func mcpCaptureURL(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rawURL, err := req.RequireString("url")
		if err != nil {
			return mcpError("url is required"), nil
		}
		target, err := capture.Website(rawURL)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		contextText := req.GetString("context", "")
		if contextText == "" {
			contextText = "Manual website capture of " + target.URL
		}

		row, err := deps.Coordinator.LogCapture(ctx, target, contextText, captureForTarget(target))
		if err != nil {
			return mcpError(fmt.Sprintf("capture failed: %v", err)), nil
		}

		snap := deps.Coordinator.Status().Snapshot()
		return mcpText(fmt.Sprintf("Captured %s as row %d of %s", target.URL, row, snap.CurrentDocument)), nil
	}
}

func mcpStartPoller(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		interval, err := req.RequireFloat("interval_seconds")
		if err != nil {
			return mcpError("interval_seconds is required"), nil
		}

		target := capture.Desktop()
		if rawURL := req.GetString("url", ""); rawURL != "" {
			target, err = capture.Website(rawURL)
			if err != nil {
				return mcpError(err.Error()), nil
			}
		}

		cfg := poller.Config{Target: target, Interval: clampInterval(interval)}
		if err := deps.Poller.Start(cfg); err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(fmt.Sprintf("Poller started: every %s on %s", cfg.Interval, cfg.Target)), nil
	}
}

func mcpStopPoller(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		deps.Poller.Stop()
		return mcpText("Poller stopped"), nil
	}
}

func mcpResourceStatus(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		snap := deps.Coordinator.Status().Snapshot()
		b, err := json.Marshal(snap)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal status: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "contextshot://status",
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
