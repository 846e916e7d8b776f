// Package api exposes the hub to external automations: an HTTP ingest
// and management surface, and an MCP tool server for agent clients.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/yskim/aihub/internal/convo"
	"github.com/yskim/aihub/internal/intent"
	"github.com/yskim/aihub/internal/pipeline"
)

const (
	maxIngestBodySize = 10 << 20 // 10MB
	maxURLFetchSize   = 5 << 20  // 5MB
)

// Handler runs ingested content through the pipeline.
type Handler interface {
	Handle(ctx context.Context, in pipeline.Inbound) pipeline.Reply
}

// MessageStore reads conversation history for the management surface.
type MessageStore interface {
	Recent(conversationID string, limit int) ([]convo.Message, error)
}

type Deps struct {
	Store   MessageStore
	Handler Handler
	// Deliver forwards analysis replies to the owner chat; optional.
	Deliver    func(ctx context.Context, r pipeline.Reply)
	Token      string
	HTTPClient *http.Client
	Log        *slog.Logger
}

// IngestRequest is what external watchers (Drive, Calendar, custom
// scripts) push at the hub.
type IngestRequest struct {
	Source  string            `json:"source"`
	Title   string            `json:"title"`
	Content string            `json:"content"`
	URL     string            `json:"url"`
	Tags    []string          `json:"tags"`
	Meta    map[string]string `json:"metadata"`
}

func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(deps.Token))
		r.Post("/ingest", handleIngest(deps))
		r.Get("/conversations/{id}/messages", handleMessages(deps))
	})

	return r
}

// bearerAuth guards the management routes with a constant-time token
// comparison.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleIngest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodySize)
		defer r.Body.Close()

		var req IngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Source == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "source is required")
			return
		}
		if req.Content == "" && req.URL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one of content or url is required")
			return
		}

		content := req.Content
		if content == "" {
			fetched, err := fetchURL(r.Context(), deps.HTTPClient, req.URL)
			if err != nil {
				httpError(w, http.StatusBadGateway, "api_error", "failed to fetch url: %v", err)
				return
			}
			content = fetched
			if req.Title == "" {
				req.Title = req.URL
			}
		}

		id := uuid.New().String()
		in := pipeline.Inbound{
			ConversationID: "ingest:" + req.Source,
			Text:           content,
			ForceMode:      intent.ModeAnalyze,
			Title:          req.Title,
			SourceTag:      req.Source,
		}

		// The analysis can take several model calls; run it off the
		// request and hand results to the owner chat.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			reply := deps.Handler.Handle(ctx, in)
			if deps.Deliver != nil {
				deps.Deliver(ctx, reply)
			}
			deps.Log.Info("ingest item processed", "id", id, "source", req.Source, "title", req.Title)
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"id":     id,
			"status": "accepted",
		})
	}
}

func fetchURL(ctx context.Context, client *http.Client, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("url returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxURLFetchSize))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func handleMessages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		limit := parseIntParam(r, "limit", 50, 500)

		messages, err := deps.Store.Recent(id, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load messages: %v", err)
			return
		}
		if messages == nil {
			messages = []convo.Message{}
		}

		type messageOut struct {
			ID        string `json:"id"`
			Role      string `json:"role"`
			Content   string `json:"content"`
			Modality  string `json:"modality"`
			CreatedAt string `json:"created_at"`
		}
		out := make([]messageOut, len(messages))
		for i, m := range messages {
			out[i] = messageOut{
				ID:        m.ID,
				Role:      string(m.Role),
				Content:   m.Content,
				Modality:  string(m.Modality),
				CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
