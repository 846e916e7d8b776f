package provider

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

type fakeResult struct {
	text string
	err  error
}

type fakeBackend struct {
	catalog []string
	listErr error
	results []fakeResult
	calls   []string
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) ListModels(ctx context.Context) ([]string, error) {
	return f.catalog, f.listErr
}

func (f *fakeBackend) GenerateText(ctx context.Context, model, prompt string, opts Options) (string, error) {
	f.calls = append(f.calls, model)
	if len(f.results) == 0 {
		return "", errors.New("unexpected call")
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r.text, r.err
}

func (f *fakeBackend) GenerateParts(ctx context.Context, model, prompt string, parts []Part, opts Options) (string, error) {
	return f.GenerateText(ctx, model, prompt, opts)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_FallsBackOnTransportError(t *testing.T) {
	backend := &fakeBackend{
		results: []fakeResult{
			{err: errors.New("connection reset")},
			{text: "recovered answer"},
		},
	}
	client := NewClient(backend, []string{"model-a", "model-b", "model-c"}, Options{}, testLogger())

	res := client.Generate(context.Background(), "hello")

	if res.Kind != KindSuccess {
		t.Fatalf("Kind = %v, want KindSuccess (reason: %s)", res.Kind, res.Reason)
	}
	if res.Text != "recovered answer" {
		t.Errorf("Text = %q, want recovered answer", res.Text)
	}
	if len(backend.calls) != 2 {
		t.Errorf("backend called %d times, want 2", len(backend.calls))
	}
	if backend.calls[1] != "model-b" {
		t.Errorf("second call used %q, want model-b", backend.calls[1])
	}
}

func TestClient_BlockStopsChain(t *testing.T) {
	backend := &fakeBackend{
		results: []fakeResult{
			{err: &BlockedError{Reason: "SAFETY"}},
		},
	}
	client := NewClient(backend, []string{"model-a", "model-b"}, Options{}, testLogger())

	res := client.Generate(context.Background(), "dubious prompt")

	if res.Kind != KindBlocked {
		t.Fatalf("Kind = %v, want KindBlocked", res.Kind)
	}
	if len(backend.calls) != 1 {
		t.Errorf("backend called %d times, want 1: blocks must not retry", len(backend.calls))
	}
}

func TestClient_TruncatedStopsChain(t *testing.T) {
	backend := &fakeBackend{
		results: []fakeResult{
			{err: &TruncatedError{Reason: "finish reason MAX_TOKENS"}},
		},
	}
	client := NewClient(backend, []string{"model-a", "model-b"}, Options{}, testLogger())

	res := client.Generate(context.Background(), "hello")

	if res.Kind != KindFailure {
		t.Fatalf("Kind = %v, want KindFailure", res.Kind)
	}
	if len(backend.calls) != 1 {
		t.Errorf("backend called %d times, want 1", len(backend.calls))
	}
}

func TestClient_ExhaustionReportsLastError(t *testing.T) {
	backend := &fakeBackend{
		results: []fakeResult{
			{err: errors.New("timeout one")},
			{err: errors.New("timeout two")},
		},
	}
	client := NewClient(backend, []string{"model-a", "model-b"}, Options{}, testLogger())

	res := client.Generate(context.Background(), "hello")

	if res.Kind != KindFailure {
		t.Fatalf("Kind = %v, want KindFailure", res.Kind)
	}
	if !strings.Contains(res.Reason, "timeout two") {
		t.Errorf("Reason = %q, want mention of the last error", res.Reason)
	}
	if len(backend.calls) != 2 {
		t.Errorf("backend called %d times, want 2", len(backend.calls))
	}
}

func TestClient_ResolvesAgainstCatalog(t *testing.T) {
	backend := &fakeBackend{
		catalog: []string{"gemini-2.5-flash-002", "gemini-1.5-pro"},
		results: []fakeResult{{text: "ok"}},
	}
	client := NewClient(backend, []string{"gemini-2.5-flash"}, Options{}, testLogger())

	res := client.Generate(context.Background(), "hello")

	if res.Kind != KindSuccess {
		t.Fatalf("Kind = %v, want KindSuccess", res.Kind)
	}
	if backend.calls[0] != "gemini-2.5-flash-002" {
		t.Errorf("resolved model = %q, want gemini-2.5-flash-002", backend.calls[0])
	}
}

func TestClient_CatalogUnavailableUsesLiteralName(t *testing.T) {
	backend := &fakeBackend{
		listErr: errors.New("network down"),
		results: []fakeResult{{text: "ok"}},
	}
	client := NewClient(backend, []string{"gemini-2.5-flash"}, Options{}, testLogger())

	res := client.Generate(context.Background(), "hello")

	if res.Kind != KindSuccess {
		t.Fatalf("Kind = %v, want KindSuccess", res.Kind)
	}
	if backend.calls[0] != "gemini-2.5-flash" {
		t.Errorf("model = %q, want literal gemini-2.5-flash", backend.calls[0])
	}
}
