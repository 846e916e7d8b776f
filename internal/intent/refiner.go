package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yskim/aihub/internal/provider"
)

// Generator is the single provider call the refiner needs.
type Generator interface {
	Generate(ctx context.Context, prompt string) provider.Result
}

// Refiner asks the model to settle messages the rule table could not.
// It fails closed: any error, block, or off-script answer means chat.
type Refiner struct {
	gen Generator
	log *slog.Logger
}

func NewRefiner(gen Generator, log *slog.Logger) *Refiner {
	return &Refiner{gen: gen, log: log}
}

const refinePrompt = `Classify the user message below for routing.
Answer with exactly one word: "chat" if it is casual conversation, or "analyze" if it asks for summarization, analysis, or processing of content.

Message:
%s`

func (r *Refiner) Refine(ctx context.Context, text string) Mode {
	res := r.gen.Generate(ctx, fmt.Sprintf(refinePrompt, text))
	if res.Kind != provider.KindSuccess {
		r.log.Debug("intent refinement unavailable, defaulting to chat", "reason", res.Reason)
		return ModeChat
	}

	switch strings.ToLower(strings.Trim(strings.TrimSpace(res.Text), `."'`)) {
	case "analyze":
		return ModeAnalyze
	case "chat":
		return ModeChat
	}
	r.log.Debug("intent refinement answered off-script, defaulting to chat", "answer", res.Text)
	return ModeChat
}
