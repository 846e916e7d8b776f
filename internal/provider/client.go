package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const defaultCallTimeout = 90 * time.Second

// Client walks an ordered candidate model chain over a single Backend.
// Candidates are listed cheapest first; transport faults advance the
// chain, safety blocks and empty generations stop it.
type Client struct {
	backend Backend
	models  []string
	opts    Options
	timeout time.Duration
	log     *slog.Logger

	mu      sync.Mutex
	catalog []string
}

func NewClient(backend Backend, models []string, opts Options, log *slog.Logger) *Client {
	return &Client{
		backend: backend,
		models:  models,
		opts:    opts,
		timeout: defaultCallTimeout,
		log:     log.With("backend", backend.Name()),
	}
}

// Generate runs a text-only request through the fallback chain.
func (c *Client) Generate(ctx context.Context, prompt string) Result {
	return c.walk(ctx, func(ctx context.Context, model string) (string, error) {
		return c.backend.GenerateText(ctx, model, prompt, c.opts)
	})
}

// GenerateParts runs a request with binary attachments through the
// fallback chain.
func (c *Client) GenerateParts(ctx context.Context, prompt string, parts []Part) Result {
	return c.walk(ctx, func(ctx context.Context, model string) (string, error) {
		return c.backend.GenerateParts(ctx, model, prompt, parts, c.opts)
	})
}

func (c *Client) walk(ctx context.Context, call func(context.Context, string) (string, error)) Result {
	var lastErr error
	for _, candidate := range c.models {
		model := c.resolve(ctx, candidate)

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		text, err := call(callCtx, model)
		cancel()

		if err == nil {
			return Success(text)
		}

		var blocked *BlockedError
		if errors.As(err, &blocked) {
			c.log.Warn("generation blocked", "model", model, "reason", blocked.Reason)
			return Blocked(blocked.Reason)
		}
		var truncated *TruncatedError
		if errors.As(err, &truncated) {
			c.log.Warn("generation returned no text", "model", model, "reason", truncated.Reason)
			return Failure(truncated.Reason)
		}
		if ctx.Err() != nil {
			return Failure(ctx.Err().Error())
		}

		c.log.Warn("model call failed, trying next candidate", "model", model, "error", err)
		lastErr = err
	}

	if lastErr == nil {
		return Failure("no candidate models configured")
	}
	return Failure(fmt.Sprintf("all models failed: %v", lastErr))
}

// resolve maps a configured candidate name onto a catalog entry. The
// catalog is fetched once and cached; on any miss or fetch failure the
// configured name is used literally.
func (c *Client) resolve(ctx context.Context, name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.catalog == nil {
		listCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		models, err := c.backend.ListModels(listCtx)
		cancel()
		if err != nil {
			c.log.Debug("model catalog unavailable, using configured names literally", "error", err)
			c.catalog = []string{}
		} else {
			c.catalog = models
		}
	}

	for _, m := range c.catalog {
		if m == name {
			return m
		}
	}
	for _, m := range c.catalog {
		if strings.Contains(m, name) || strings.Contains(name, m) {
			return m
		}
	}
	return name
}
