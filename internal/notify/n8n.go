package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// N8N posts records to a workflow webhook; the workflow decides what
// happens downstream.
type N8N struct {
	webhookURL string
	client     *http.Client
}

func NewN8N(webhookURL string) *N8N {
	return &N8N{webhookURL: webhookURL, client: httpClient()}
}

func (n *N8N) Name() string { return "n8n" }

type n8nPayload struct {
	Event    string            `json:"event"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (n *N8N) Send(ctx context.Context, rec Record) error {
	body, err := json.Marshal(n8nPayload{
		Event:    "aihub.analysis",
		Title:    rec.Title,
		Body:     rec.Body,
		Source:   rec.SourceTag,
		Metadata: rec.Metadata,
	})
	if err != nil {
		return fmt.Errorf("encoding n8n payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building n8n request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to n8n webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("n8n returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}
