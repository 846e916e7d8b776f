package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/yskim/aihub/internal/config"
	"github.com/yskim/aihub/internal/summarize"
)

// --- send ---

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send content to the hub for analysis",
	Long: `Send content to the running hub. The hub analyzes it and delivers
the result to the owner chat and the configured destinations.

Examples:
  aihub send --text "meeting notes: ship the beta on friday"
  aihub send --url https://example.com/article --title "Launch article"
  aihub send --file ./report.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		url, _ := cmd.Flags().GetString("url")
		file, _ := cmd.Flags().GetString("file")
		title, _ := cmd.Flags().GetString("title")

		if text == "" && url == "" && file == "" {
			return fmt.Errorf("one of --text, --url, or --file is required")
		}

		req := map[string]any{
			"source": "cli",
		}
		if title != "" {
			req["title"] = title
		}

		switch {
		case text != "":
			req["content"] = text
		case url != "":
			req["url"] = url
		case file != "":
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			req["content"] = string(data)
			if title == "" {
				req["title"] = file
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/ingest", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Accepted item %s", result["id"])
		return nil
	},
}

func init() {
	sendCmd.Flags().String("text", "", "text content to analyze")
	sendCmd.Flags().String("url", "", "URL to fetch and analyze")
	sendCmd.Flags().String("file", "", "file path to analyze")
	sendCmd.Flags().String("title", "", "title for the item")
}

// --- summarize ---

var summarizeCmd = &cobra.Command{
	Use:   "summarize [file]",
	Short: "Summarize a file or stdin with the hub's summarizer",
	Long: `Summarize text without going through the server. Reads the given
file, or stdin when no file is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if len(args) == 1 {
			data, err = os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
		} else {
			data, err = io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		log := slog.New(slog.NewTextHandler(io.Discard, nil))
		gen, err := buildGenerator(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		sum := summarize.New(gen, cfg.Reply.MaxChunkSize, cfg.Reply.MaxSummarySize, log)
		fmt.Println(sum.Summarize(cmd.Context(), string(data)))
		return nil
	},
}

// --- conversations ---

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "Inspect stored conversations",
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show recent messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/conversations/%s/messages?limit=%d", args[0], limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var messages []struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			Modality  string `json:"modality"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &messages); err != nil {
			return err
		}

		if len(messages) == 0 {
			fmt.Println("No messages found.")
			return nil
		}

		for _, m := range messages {
			content := m.Content
			if len(content) > 200 {
				content = content[:200] + "..."
			}
			label := m.Role
			if m.Modality != "" && m.Modality != "text" {
				label += "/" + m.Modality
			}
			fmt.Printf("%s  %s  %s\n",
				colorize(colorCyan, m.CreatedAt),
				colorize(colorBold, label),
				content,
			)
		}
		return nil
	},
}

func init() {
	conversationsShowCmd.Flags().Int("limit", 20, "maximum number of messages to show")
	conversationsCmd.AddCommand(conversationsShowCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, e := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, e.Key), e.Value)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}
