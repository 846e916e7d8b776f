package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const slackBaseURL = "https://slack.com"

// Slack posts records into a channel via chat.postMessage.
type Slack struct {
	token   string
	channel string
	baseURL string
	client  *http.Client
}

func NewSlack(token, channel string) *Slack {
	return &Slack{
		token:   token,
		channel: channel,
		baseURL: slackBaseURL,
		client:  httpClient(),
	}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Send(ctx context.Context, rec Record) error {
	text := "*" + rec.Title + "*\n" + rec.Body
	if rec.SourceTag != "" {
		text += "\n_source: " + rec.SourceTag + "_"
	}

	body, err := json.Marshal(map[string]string{
		"channel": s.channel,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("encoding slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/chat.postMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building slack request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting slack message: %w", err)
	}
	defer resp.Body.Close()

	// Slack reports application errors in the body with HTTP 200.
	var status struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("decoding slack response: %w", err)
	}
	if !status.OK {
		return fmt.Errorf("slack rejected message: %s", status.Error)
	}
	return nil
}
