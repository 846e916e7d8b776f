package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// MailFeed reads a JSON feed of mail messages exposed by an external
// forwarder. HTML bodies are normalized to plain text before they
// enter the pipeline.
type MailFeed struct {
	url    string
	client *http.Client
}

func NewMailFeed(url string) *MailFeed {
	return &MailFeed{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (m *MailFeed) Name() string { return "mail" }

type mailEntry struct {
	ID       string `json:"id"`
	From     string `json:"from"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	BodyHTML string `json:"body_html"`
}

func (m *MailFeed) Poll(ctx context.Context) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching mail feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mail feed returned %d", resp.StatusCode)
	}

	var entries []mailEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding mail feed: %w", err)
	}

	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		body := e.Body
		if body == "" && e.BodyHTML != "" {
			body = htmlToText(e.BodyHTML)
		}
		items = append(items, Item{
			ID:    e.ID,
			Title: "Mail: " + e.Subject,
			Body:  fmt.Sprintf("From: %s\nSubject: %s\n\n%s", e.From, e.Subject, body),
		})
	}
	return items, nil
}

// htmlToText flattens markup to readable text: block elements become
// line breaks, script and style contents are dropped.
func htmlToText(s string) string {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "head":
				return
			case "br", "p", "div", "tr", "li", "h1", "h2", "h3", "h4":
				b.WriteByte('\n')
			}
		case html.TextNode:
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	// Collapse runs of blank lines left by nested block elements.
	lines := strings.Split(b.String(), "\n")
	var out []string
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
