// Package summarize condenses long text with a map-reduce strategy:
// sentence-aware chunks are summarized in parallel, then the partial
// summaries are merged in one final call.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/yskim/aihub/internal/provider"
)

const (
	// mapWorkers bounds the parallel map phase.
	mapWorkers = 4

	// NothingToSummarize is returned when input is empty or every
	// chunk failed. Callers may show it to the user as-is.
	NothingToSummarize = "nothing to summarize"

	// Unavailable is returned when the backend could not produce a
	// summary at all.
	Unavailable = "summary unavailable right now"
)

// Generator is the single provider call the summarizer needs.
type Generator interface {
	Generate(ctx context.Context, prompt string) provider.Result
}

type Summarizer struct {
	gen            Generator
	maxChunkSize   int
	maxSummarySize int
	log            *slog.Logger
}

func New(gen Generator, maxChunkSize, maxSummarySize int, log *slog.Logger) *Summarizer {
	return &Summarizer{
		gen:            gen,
		maxChunkSize:   maxChunkSize,
		maxSummarySize: maxSummarySize,
		log:            log,
	}
}

const singlePrompt = `Summarize the following text in at most %d characters.
Keep the key facts, numbers, and conclusions. Answer in the text's language.

%s`

const mapPrompt = `This is part %d of %d of a longer document.
Summarize just this part in roughly 300 tokens, keeping key facts and numbers. Answer in the text's language.

%s`

const reducePrompt = `The bullet points below are partial summaries of one document, in order.
Merge them into a single coherent summary of at most %d characters. Answer in the text's language.

%s`

// Summarize condenses text. Short input goes through a single call;
// longer input is split, mapped in parallel, and reduced. Failure
// paths return human-readable marker strings rather than errors.
func (s *Summarizer) Summarize(ctx context.Context, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return NothingToSummarize
	}

	if len(text) <= s.maxChunkSize {
		res := s.gen.Generate(ctx, fmt.Sprintf(singlePrompt, s.maxSummarySize, text))
		if res.Kind != provider.KindSuccess {
			s.log.Warn("summarization failed", "reason", res.Reason)
			return Unavailable
		}
		return res.Text
	}

	chunks := splitChunks(text, s.maxChunkSize)
	partials := make([]string, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(mapWorkers)
	for i, chunk := range chunks {
		g.Go(func() error {
			res := s.gen.Generate(gctx, fmt.Sprintf(mapPrompt, i+1, len(chunks), chunk))
			if res.Kind != provider.KindSuccess {
				// Skip failed chunks; the reduce step works with
				// whatever survived.
				s.log.Warn("chunk summarization failed", "chunk", i+1, "of", len(chunks), "reason", res.Reason)
				return nil
			}
			partials[i] = res.Text
			return nil
		})
	}
	g.Wait()

	var bullets strings.Builder
	for _, p := range partials {
		if p == "" {
			continue
		}
		bullets.WriteString("- ")
		bullets.WriteString(p)
		bullets.WriteString("\n")
	}
	if bullets.Len() == 0 {
		return NothingToSummarize
	}

	res := s.gen.Generate(ctx, fmt.Sprintf(reducePrompt, s.maxSummarySize, bullets.String()))
	if res.Kind != provider.KindSuccess {
		s.log.Warn("reduce step failed, returning partials", "reason", res.Reason)
		return strings.TrimSpace(bullets.String())
	}
	return res.Text
}

// splitChunks cuts text into ordered windows of at most maxSize,
// preferring to break after the last '.' in the second half of each
// window. Windows without one are cut at a rune boundary so no chunk
// carries a broken character at its edge. The concatenation of the
// chunks equals the input.
func splitChunks(text string, maxSize int) []string {
	var chunks []string
	for len(text) > maxSize {
		window := text[:maxSize]
		cut := maxSize
		if dot := strings.LastIndexByte(window[maxSize/2:], '.'); dot >= 0 {
			cut = maxSize/2 + dot + 1
		} else {
			for cut > 1 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if len(text) > 0 {
		chunks = append(chunks, text)
	}
	return chunks
}
