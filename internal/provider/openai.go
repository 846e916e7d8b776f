package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI adapts the OpenAI chat-completions API to the Backend
// interface. A custom base URL makes it serve any compatible endpoint.
type OpenAI struct {
	client openai.Client
}

func NewOpenAI(apiKey, baseURL string) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAI{client: openai.NewClient(opts...)}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) ListModels(ctx context.Context) ([]string, error) {
	page, err := o.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list openai models: %w", err)
	}
	names := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		names = append(names, m.ID)
	}
	return names, nil
}

func (o *OpenAI) GenerateText(ctx context.Context, model, prompt string, opts Options) (string, error) {
	return o.complete(ctx, model, []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage(prompt),
	}, opts)
}

func (o *OpenAI) GenerateParts(ctx context.Context, model, prompt string, parts []Part, opts Options) (string, error) {
	content := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompt),
	}
	for _, p := range parts {
		url := fmt.Sprintf("data:%s;base64,%s", p.MIME, base64.StdEncoding.EncodeToString(p.Data))
		content = append(content, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: url,
		}))
	}
	return o.complete(ctx, model, []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage(content),
	}, opts)
}

func (o *OpenAI) complete(ctx context.Context, model string, messages []openai.ChatCompletionMessageParamUnion, opts Options) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(float64(opts.Temperature))
	}
	if opts.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxOutputTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", o.classifyErr(err)
	}
	if len(resp.Choices) == 0 {
		return "", &TruncatedError{Reason: "no choices"}
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", &BlockedError{Reason: "finish reason content_filter"}
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", &TruncatedError{Reason: "finish reason " + choice.FinishReason}
	}
	return text, nil
}

// classifyErr is the single place where vendor error strings are
// sniffed for policy refusals delivered as plain API errors.
func (o *OpenAI) classifyErr(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "content_filter") || strings.Contains(msg, "content management policy") {
		return &BlockedError{Reason: err.Error()}
	}
	return fmt.Errorf("openai generate: %w", err)
}
