package summarize

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/yskim/aihub/internal/provider"
)

type recordingGenerator struct {
	mu      sync.Mutex
	prompts []string
	respond func(prompt string) provider.Result
}

func (g *recordingGenerator) Generate(ctx context.Context, prompt string) provider.Result {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	return g.respond(prompt)
}

func (g *recordingGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSummarize_EmptyInput(t *testing.T) {
	gen := &recordingGenerator{respond: func(string) provider.Result {
		return provider.Success("unused")
	}}
	s := New(gen, 8000, 1000, testLogger())

	if got := s.Summarize(context.Background(), "   \n"); got != NothingToSummarize {
		t.Errorf("got %q, want %q", got, NothingToSummarize)
	}
	if gen.callCount() != 0 {
		t.Errorf("generator called %d times, want 0", gen.callCount())
	}
}

func TestSummarize_ShortInputSingleCall(t *testing.T) {
	gen := &recordingGenerator{respond: func(string) provider.Result {
		return provider.Success("short summary")
	}}
	s := New(gen, 8000, 1000, testLogger())

	got := s.Summarize(context.Background(), strings.Repeat("x", 5000))

	if got != "short summary" {
		t.Errorf("got %q, want short summary", got)
	}
	if gen.callCount() != 1 {
		t.Errorf("generator called %d times, want 1", gen.callCount())
	}
}

func TestSummarize_LongInputMapReduce(t *testing.T) {
	gen := &recordingGenerator{respond: func(prompt string) provider.Result {
		if strings.Contains(prompt, "bullet points") {
			return provider.Success("final summary")
		}
		return provider.Success("partial")
	}}
	s := New(gen, 8000, 1000, testLogger())

	got := s.Summarize(context.Background(), strings.Repeat("x", 20000))

	if got != "final summary" {
		t.Errorf("got %q, want final summary", got)
	}
	// 20000 chars with an 8000 chunk limit splits into 3 chunks, so three
	// map calls plus one reduce call.
	if gen.callCount() != 4 {
		t.Errorf("generator called %d times, want 4", gen.callCount())
	}
}

func TestSummarize_AllChunksFailed(t *testing.T) {
	gen := &recordingGenerator{respond: func(prompt string) provider.Result {
		return provider.Failure("backend down")
	}}
	s := New(gen, 8000, 1000, testLogger())

	if got := s.Summarize(context.Background(), strings.Repeat("x", 20000)); got != NothingToSummarize {
		t.Errorf("got %q, want %q", got, NothingToSummarize)
	}
}

func TestSummarize_ReduceFailureReturnsPartials(t *testing.T) {
	gen := &recordingGenerator{respond: func(prompt string) provider.Result {
		if strings.Contains(prompt, "bullet points") {
			return provider.Failure("backend down")
		}
		return provider.Success("partial")
	}}
	s := New(gen, 8000, 1000, testLogger())

	got := s.Summarize(context.Background(), strings.Repeat("x", 20000))

	if !strings.Contains(got, "- partial") {
		t.Errorf("got %q, want bulleted partials when reduce fails", got)
	}
}

func TestSplitChunks_Lossless(t *testing.T) {
	text := strings.Repeat("some sentence here. ", 1500) // ~30000 chars
	chunks := splitChunks(text, 8000)

	if len(chunks) < 3 {
		t.Fatalf("len(chunks) = %d, want >= 3", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 8000 {
			t.Errorf("chunk %d has length %d, want <= 8000", i, len(c))
		}
	}
	if strings.Join(chunks, "") != text {
		t.Error("concatenated chunks do not reproduce the input")
	}
}

func TestSplitChunks_PrefersSentenceBoundary(t *testing.T) {
	// A '.' sits in the second half of the first window; the cut must
	// land right after it.
	text := strings.Repeat("a", 70) + "." + strings.Repeat("b", 60)
	chunks := splitChunks(text, 100)

	if len(chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want 2", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], ".") {
		t.Errorf("first chunk %q does not end at the sentence boundary", chunks[0])
	}
	if len(chunks[0]) != 71 {
		t.Errorf("first chunk length = %d, want 71", len(chunks[0]))
	}
}

func TestSplitChunks_NoBoundaryHardCut(t *testing.T) {
	text := strings.Repeat("x", 250)
	chunks := splitChunks(text, 100)

	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3", len(chunks))
	}
	if len(chunks[0]) != 100 || len(chunks[1]) != 100 || len(chunks[2]) != 50 {
		t.Errorf("chunk lengths = %d, %d, %d; want 100, 100, 50", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
}

func TestSplitChunks_NoBoundaryKeepsRunesIntact(t *testing.T) {
	text := strings.Repeat("한", 100) // 300 bytes, no '.' anywhere
	chunks := splitChunks(text, 100)

	if len(chunks) < 3 {
		t.Fatalf("len(chunks) = %d, want >= 3", len(chunks))
	}
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d is not valid UTF-8", i)
		}
		if len(c) > 100 {
			t.Errorf("chunk %d has length %d, want <= 100", i, len(c))
		}
	}
	if strings.Join(chunks, "") != text {
		t.Error("concatenated chunks do not reproduce the input")
	}
}
