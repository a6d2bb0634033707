package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ybartosh/contextshot/internal/config"
)

// --- capture ---

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture the desktop or a web page into the context log",
	Long: `Capture the desktop or a web page into the context log.

Examples:
  contextshot capture --context "after the deploy"
  contextshot capture --delay 10 --context "error dialog"
  contextshot capture --url https://status.example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		contextText, _ := cmd.Flags().GetString("context")
		delay, _ := cmd.Flags().GetFloat64("delay")
		rawURL, _ := cmd.Flags().GetString("url")

		if !cmd.Flags().Changed("delay") {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			delay = float64(cfg.Capture.DefaultDelaySeconds)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"context":       contextText,
			"delay_seconds": delay,
		}
		if rawURL != "" {
			req["url"] = rawURL
		}

		resp, err := client.post(cmd.Context(), "/capture", req)
		if err != nil {
			return err
		}

		var result struct {
			Document string `json:"document"`
			Row      int    `json:"row"`
			Target   string `json:"target"`
			Title    string `json:"title"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Title != "" {
			printSuccess("Captured %s (%q) as row %d of %s", result.Target, result.Title, result.Row, result.Document)
		} else {
			printSuccess("Captured %s as row %d of %s", result.Target, result.Row, result.Document)
		}
		return nil
	},
}

func init() {
	captureCmd.Flags().String("context", "", "free-text context stored alongside the screenshot")
	captureCmd.Flags().Float64("delay", 0, "seconds to wait before capturing (0-60, default from config)")
	captureCmd.Flags().String("url", "", "http(s) URL to capture instead of the desktop")
}

// --- poll ---

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Manage the background poller",
}

var pollStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start capturing a target on a fixed interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		rawURL, _ := cmd.Flags().GetString("url")
		interval, _ := cmd.Flags().GetFloat64("interval")

		if interval == 0 {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			interval = float64(cfg.Capture.DefaultIntervalSeconds)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"interval_seconds": interval,
		}
		if rawURL != "" {
			req["url"] = rawURL
		}

		resp, err := client.post(cmd.Context(), "/poll/start", req)
		if err != nil {
			return err
		}

		var result struct {
			Target   string `json:"target"`
			Interval string `json:"interval"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Polling %s every %s", result.Target, result.Interval)
		return nil
	},
}

var pollStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running poller",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/poll/stop", nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Poller stopped")
		return nil
	},
}

func init() {
	pollStartCmd.Flags().String("url", "", "http(s) URL to poll; omit for the full desktop")
	pollStartCmd.Flags().Float64("interval", 0, "seconds between captures (5-86400)")
	pollCmd.AddCommand(pollStartCmd)
	pollCmd.AddCommand(pollStopCmd)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent captures from the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/history?limit=%d", limit))
		if err != nil {
			return err
		}

		var entries []struct {
			CapturedAt time.Time `json:"captured_at"`
			Target     string    `json:"target"`
			Context    string    `json:"context"`
			Document   string    `json:"document"`
			Row        int       `json:"row"`
		}
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No captures recorded.")
			return nil
		}

		for _, e := range entries {
			ctxText := e.Context
			if len(ctxText) > 60 {
				ctxText = ctxText[:60] + "..."
			}
			fmt.Printf("%s  %-30s  %s row %d  %s\n",
				e.CapturedAt.Local().Format("2006-01-02 15:04:05"),
				colorize(colorCyan, e.Target),
				e.Document,
				e.Row,
				ctxText,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of captures to list")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
