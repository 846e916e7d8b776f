package provider

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Gemini adapts the Google generative API to the Backend interface.
type Gemini struct {
	client           *genai.Client
	permissiveSafety bool
}

// NewGemini dials the Gemini API with the given key.
func NewGemini(ctx context.Context, apiKey string, permissiveSafety bool) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client, permissiveSafety: permissiveSafety}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) ListModels(ctx context.Context) ([]string, error) {
	page, err := g.client.Models.List(ctx, &genai.ListModelsConfig{})
	if err != nil {
		return nil, fmt.Errorf("list gemini models: %w", err)
	}
	names := make([]string, 0, len(page.Items))
	for _, m := range page.Items {
		names = append(names, strings.TrimPrefix(m.Name, "models/"))
	}
	return names, nil
}

func (g *Gemini) GenerateText(ctx context.Context, model, prompt string, opts Options) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), g.genConfig(opts))
	if err != nil {
		return "", g.classifyErr(err)
	}
	return g.extractText(resp)
}

func (g *Gemini) GenerateParts(ctx context.Context, model, prompt string, parts []Part, opts Options) (string, error) {
	content := &genai.Content{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: prompt}},
	}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: p.MIME, Data: p.Data},
		})
	}
	resp, err := g.client.Models.GenerateContent(ctx, model, []*genai.Content{content}, g.genConfig(opts))
	if err != nil {
		return "", g.classifyErr(err)
	}
	return g.extractText(resp)
}

func (g *Gemini) genConfig(opts Options) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if opts.Temperature > 0 {
		cfg.Temperature = genai.Ptr(opts.Temperature)
	}
	if opts.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = opts.MaxOutputTokens
	}
	if g.permissiveSafety {
		cfg.SafetySettings = permissiveSafetySettings()
	}
	return cfg
}

// permissiveSafetySettings disables category filtering so the hub, not
// the vendor, decides what reaches the user. The account tier still
// enforces a hard floor.
func permissiveSafetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  c,
			Threshold: genai.HarmBlockThresholdBlockNone,
		})
	}
	return settings
}

// extractText pulls usable text out of a response, translating safety
// verdicts into *BlockedError and empty generations into *TruncatedError.
func (g *Gemini) extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", &TruncatedError{Reason: "empty response"}
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return "", &BlockedError{Reason: "prompt blocked: " + string(fb.BlockReason)}
	}
	if len(resp.Candidates) == 0 {
		return "", &TruncatedError{Reason: "no candidates"}
	}

	cand := resp.Candidates[0]
	switch cand.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent:
		return "", &BlockedError{Reason: "candidate blocked: " + string(cand.FinishReason)}
	}
	for _, r := range cand.SafetyRatings {
		if r.Blocked {
			return "", &BlockedError{Reason: "safety rating: " + string(r.Category)}
		}
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &TruncatedError{Reason: "finish reason " + string(cand.FinishReason)}
	}
	return text, nil
}

// classifyErr is the single place where vendor error strings are
// sniffed. The API sometimes reports prompt-level blocks as plain
// errors rather than structured feedback.
func (g *Gemini) classifyErr(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "blocked") || strings.Contains(msg, "safety") ||
		strings.Contains(msg, "prohibited_content") {
		return &BlockedError{Reason: err.Error()}
	}
	return fmt.Errorf("gemini generate: %w", err)
}
