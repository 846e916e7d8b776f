package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotion_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/pages" {
			t.Errorf("path = %s, want /v1/pages", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Notion-Version") == "" {
			t.Error("missing Notion-Version header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotion("tok", "db-1")
	n.baseURL = srv.URL

	err := n.Send(context.Background(), Record{
		Title:     "Analysis",
		Body:      strings.Repeat("x", 2500),
		SourceTag: "mail",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	parent := got["parent"].(map[string]any)
	if parent["database_id"] != "db-1" {
		t.Errorf("database_id = %v", parent["database_id"])
	}
	children := got["children"].([]any)
	if len(children) < 2 {
		t.Errorf("len(children) = %d, want >= 2 for a 2500-char body", len(children))
	}
}

func TestNotion_SendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"bad token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	n := NewNotion("tok", "db-1")
	n.baseURL = srv.URL

	if err := n.Send(context.Background(), Record{Title: "t"}); err == nil {
		t.Error("expected error on 401")
	}
}

func TestN8N_Send(t *testing.T) {
	var got n8nPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
	}))
	defer srv.Close()

	n := NewN8N(srv.URL)
	err := n.Send(context.Background(), Record{
		Title:     "Daily mail digest",
		Body:      "summary text",
		SourceTag: "mail",
		Metadata:  map[string]string{"conversation": "c1"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Event != "aihub.analysis" {
		t.Errorf("event = %q", got.Event)
	}
	if got.Metadata["conversation"] != "c1" {
		t.Errorf("metadata not forwarded: %v", got.Metadata)
	}
}

func TestSlack_SendReportsApplicationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok":false,"error":"channel_not_found"}`)
	}))
	defer srv.Close()

	s := NewSlack("tok", "#general")
	s.baseURL = srv.URL

	err := s.Send(context.Background(), Record{Title: "t", Body: "b"})
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Errorf("err = %v, want channel_not_found", err)
	}
}

type countingNotifier struct {
	name  string
	calls atomic.Int32
	err   error
	panic bool
}

func (c *countingNotifier) Name() string { return c.name }

func (c *countingNotifier) Send(ctx context.Context, rec Record) error {
	c.calls.Add(1)
	if c.panic {
		panic("boom")
	}
	return c.err
}

func TestDispatcher_FansOutAndSwallowsFailures(t *testing.T) {
	ok := &countingNotifier{name: "ok"}
	failing := &countingNotifier{name: "failing", err: errors.New("down")}
	panicking := &countingNotifier{name: "panicking", panic: true}

	d := NewDispatcher(testLogger(), ok, failing, panicking)
	d.Dispatch(context.Background(), Record{Title: "t", Body: "b"})

	for _, n := range []*countingNotifier{ok, failing, panicking} {
		if n.calls.Load() != 1 {
			t.Errorf("notifier %s called %d times, want 1", n.name, n.calls.Load())
		}
	}
}
