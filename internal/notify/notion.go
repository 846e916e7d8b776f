package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"
)

const (
	notionBaseURL = "https://api.notion.com"
	notionVersion = "2022-06-28"

	// notionTextLimit is Notion's per-rich-text content limit.
	notionTextLimit = 2000
)

// Notion creates one page per record in a configured database.
type Notion struct {
	token      string
	databaseID string
	baseURL    string
	client     *http.Client
}

func NewNotion(token, databaseID string) *Notion {
	return &Notion{
		token:      token,
		databaseID: databaseID,
		baseURL:    notionBaseURL,
		client:     httpClient(),
	}
}

func (n *Notion) Name() string { return "notion" }

func (n *Notion) Send(ctx context.Context, rec Record) error {
	payload := map[string]any{
		"parent": map[string]any{"database_id": n.databaseID},
		"properties": map[string]any{
			"Name": map[string]any{
				"title": []map[string]any{
					{"text": map[string]any{"content": rec.Title}},
				},
			},
		},
		"children": notionParagraphs(rec),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding notion page: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/v1/pages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building notion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.token)
	req.Header.Set("Notion-Version", notionVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting notion page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notion returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}

// notionParagraphs renders the body as paragraph blocks, split to the
// API's rich-text length limit.
func notionParagraphs(rec Record) []map[string]any {
	text := rec.Body
	if rec.SourceTag != "" {
		text = "Source: " + rec.SourceTag + "\n\n" + text
	}

	var blocks []map[string]any
	for len(text) > 0 {
		chunk := text
		if len(chunk) > notionTextLimit {
			cut := notionTextLimit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			chunk = text[:cut]
		}
		text = text[len(chunk):]

		blocks = append(blocks, map[string]any{
			"object": "block",
			"type":   "paragraph",
			"paragraph": map[string]any{
				"rich_text": []map[string]any{
					{"type": "text", "text": map[string]any{"content": chunk}},
				},
			},
		})
	}
	return blocks
}
