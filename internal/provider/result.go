package provider

import (
	"context"
	"fmt"
)

// Kind discriminates the outcome of a generation request. Exactly one
// kind applies to any Result; there is no partial success.
type Kind int

const (
	// KindSuccess carries usable generated text.
	KindSuccess Kind = iota
	// KindBlocked means the backend refused the content on safety
	// grounds. Blocks are a property of the content, not the backend,
	// and are never retried across the fallback chain.
	KindBlocked
	// KindFailure covers transport faults, exhausted fallbacks, and
	// success responses that carried no usable text.
	KindFailure
)

// Result is the tagged outcome of one logical generation request.
type Result struct {
	Kind   Kind
	Text   string // set only for KindSuccess
	Reason string // set for KindBlocked and KindFailure
}

func Success(text string) Result   { return Result{Kind: KindSuccess, Text: text} }
func Blocked(reason string) Result { return Result{Kind: KindBlocked, Reason: reason} }
func Failure(reason string) Result { return Result{Kind: KindFailure, Reason: reason} }

// Part is a binary attachment to a generation request.
type Part struct {
	MIME string
	Data []byte
}

// Options are per-request generation parameters.
type Options struct {
	Temperature     float32
	MaxOutputTokens int32
}

// Backend is a single vendor adapter. Implementations translate vendor
// signals into *BlockedError / *TruncatedError so callers never inspect
// vendor types.
type Backend interface {
	Name() string
	ListModels(ctx context.Context) ([]string, error)
	GenerateText(ctx context.Context, model, prompt string, opts Options) (string, error)
	GenerateParts(ctx context.Context, model, prompt string, parts []Part, opts Options) (string, error)
}

// BlockedError reports an explicit content-safety refusal.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("content blocked: %s", e.Reason)
}

// TruncatedError reports a success response with no usable text, e.g.
// a truncated generation or a non-success finish reason.
type TruncatedError struct {
	Reason string
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("no usable output: %s", e.Reason)
}
