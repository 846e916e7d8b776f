package api

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/yskim/aihub/internal/notify"
)

type stubSummarizer struct {
	inputs []string
}

func (s *stubSummarizer) Summarize(ctx context.Context, text string) string {
	s.inputs = append(s.inputs, text)
	return "condensed"
}

type recordingDispatcher struct {
	records []notify.Record
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, rec notify.Record) {
	d.records = append(d.records, rec)
}

func toolRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("got %d content items, want 1", len(res.Content))
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", res.Content[0])
	}
	return tc.Text
}

func TestMCPSummarize(t *testing.T) {
	sum := &stubSummarizer{}
	handler := mcpSummarize(MCPDeps{Summarizer: sum})

	res, err := handler(context.Background(), toolRequest("summarize", map[string]any{
		"text": "a long article",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if resultText(t, res) != "condensed" {
		t.Errorf("text = %q", resultText(t, res))
	}
	if len(sum.inputs) != 1 || sum.inputs[0] != "a long article" {
		t.Errorf("summarizer inputs = %v", sum.inputs)
	}
}

func TestMCPSummarizeMissingText(t *testing.T) {
	handler := mcpSummarize(MCPDeps{Summarizer: &stubSummarizer{}})

	res, err := handler(context.Background(), toolRequest("summarize", nil))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !res.IsError {
		t.Error("expected tool error for missing text")
	}
}

func TestMCPSaveNote(t *testing.T) {
	disp := &recordingDispatcher{}
	handler := mcpSaveNote(MCPDeps{Dispatcher: disp})

	res, err := handler(context.Background(), toolRequest("save_note", map[string]any{
		"title":   "Meeting follow-ups",
		"content": "1. send the deck",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if len(disp.records) != 1 {
		t.Fatalf("dispatched %d records, want 1", len(disp.records))
	}
	rec := disp.records[0]
	if rec.Title != "Meeting follow-ups" || rec.SourceTag != "mcp" {
		t.Errorf("record = %+v", rec)
	}
	if !strings.Contains(resultText(t, res), "Meeting follow-ups") {
		t.Errorf("confirmation = %q", resultText(t, res))
	}
}

func TestMCPSaveNoteWithoutDestinations(t *testing.T) {
	handler := mcpSaveNote(MCPDeps{})

	res, err := handler(context.Background(), toolRequest("save_note", map[string]any{
		"title":   "t",
		"content": "c",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !res.IsError {
		t.Error("expected tool error when no destinations are configured")
	}
}
