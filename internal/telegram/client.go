// Package telegram is a thin Bot API client plus the long-poll loop
// that feeds chat updates into the pipeline.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/yskim/aihub/internal/reply"
)

const defaultBaseURL = "https://api.telegram.org"

// Update is one item from getUpdates.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type Message struct {
	MessageID int64       `json:"message_id"`
	From      *User       `json:"from"`
	Chat      Chat        `json:"chat"`
	Text      string      `json:"text"`
	Caption   string      `json:"caption"`
	Voice     *FileRef    `json:"voice"`
	Photo     []PhotoSize `json:"photo"`
	Document  *Document   `json:"document"`
}

type User struct {
	ID int64 `json:"id"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type FileRef struct {
	FileID   string `json:"file_id"`
	MIMEType string `json:"mime_type"`
}

type PhotoSize struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size"`
}

type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	MIMEType string `json:"mime_type"`
}

// Client talks to the Bot API over plain HTTP.
type Client struct {
	token   string
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

func NewClient(token string, log *slog.Logger) *Client {
	return &Client{
		token:   token,
		baseURL: defaultBaseURL,
		// Long polling holds the connection open; the timeout must
		// exceed the poll window.
		client: &http.Client{Timeout: 70 * time.Second},
		log:    log,
	}
}

type apiEnvelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

// GetUpdates long-polls for new updates past offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeoutSec int) ([]Update, error) {
	q := url.Values{}
	q.Set("offset", strconv.FormatInt(offset, 10))
	q.Set("timeout", strconv.Itoa(timeoutSec))
	q.Set("allowed_updates", `["message"]`)

	var updates []Update
	if err := c.call(ctx, "getUpdates", q, &updates); err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}
	return updates, nil
}

// SendMessage delivers one reply fragment. When the API rejects the
// parse mode (malformed entities come back as 400), the text is
// re-sent as plain.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, mode reply.ParseMode) error {
	err := c.sendMessage(ctx, chatID, text, string(mode))
	if err != nil && mode != reply.ParseModePlain {
		c.log.Debug("parse mode rejected, resending plain", "error", err)
		return c.sendMessage(ctx, chatID, text, "")
	}
	return err
}

func (c *Client) sendMessage(ctx context.Context, chatID int64, text, parseMode string) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if parseMode != "" {
		payload["parse_mode"] = parseMode
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding sendMessage: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding sendMessage response: %w", err)
	}
	if !env.OK {
		return fmt.Errorf("sendMessage rejected (%d): %s", env.ErrorCode, env.Description)
	}
	return nil
}

// Download fetches the bytes of an uploaded file by its file ID.
func (c *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	q := url.Values{}
	q.Set("file_id", fileID)

	var file struct {
		FilePath string `json:"file_path"`
	}
	if err := c.call(ctx, "getFile", q, &file); err != nil {
		return nil, fmt.Errorf("getFile: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, file.FilePath), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading file: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) call(ctx context.Context, method string, q url.Values, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/bot%s/%s?%s", c.baseURL, c.token, method, q.Encode()), nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !env.OK {
		return fmt.Errorf("%s rejected (%d): %s", method, env.ErrorCode, env.Description)
	}
	if result != nil {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}
