// Package watch polls external sources and turns new items into
// pipeline analyses. A SQLite-backed ledger keeps restarts from
// reprocessing old items.
package watch

import (
	"context"
	"log/slog"
	"time"

	"github.com/yskim/aihub/internal/intent"
	"github.com/yskim/aihub/internal/pipeline"
)

// Item is one unit of new content from a source.
type Item struct {
	ID    string
	Title string
	Body  string
}

// Source produces new items on each poll. Poll returns everything
// currently visible; the watcher deduplicates against the ledger.
type Source interface {
	Name() string
	Poll(ctx context.Context) ([]Item, error)
}

// Ledger remembers which items have been handled.
type Ledger interface {
	Processed(source, itemID string) (bool, error)
	MarkProcessed(source, itemID string) error
}

// Handler runs the analysis for one item.
type Handler interface {
	Handle(ctx context.Context, in pipeline.Inbound) pipeline.Reply
}

// Watcher drives one source on a fixed interval. Results are handed
// to deliver (the owner's chat, typically); deliver may be nil.
type Watcher struct {
	source   Source
	ledger   Ledger
	handler  Handler
	deliver  func(ctx context.Context, r pipeline.Reply)
	ownerID  string
	interval time.Duration
	log      *slog.Logger
}

func New(source Source, ledger Ledger, handler Handler, deliver func(ctx context.Context, r pipeline.Reply), ownerConversationID string, interval time.Duration, log *slog.Logger) *Watcher {
	return &Watcher{
		source:   source,
		ledger:   ledger,
		handler:  handler,
		deliver:  deliver,
		ownerID:  ownerConversationID,
		interval: interval,
		log:      log.With("source", source.Name()),
	}
}

// Run polls until the context is canceled. The first poll happens
// immediately.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	items, err := w.source.Poll(ctx)
	if err != nil {
		w.log.Warn("poll failed", "error", err)
		return
	}

	for _, item := range items {
		seen, err := w.ledger.Processed(w.source.Name(), item.ID)
		if err != nil {
			w.log.Warn("ledger lookup failed", "item", item.ID, "error", err)
			continue
		}
		if seen {
			continue
		}
		w.process(ctx, item)
	}
}

func (w *Watcher) process(ctx context.Context, item Item) {
	w.log.Info("processing new item", "item", item.ID, "title", item.Title)

	r := w.handler.Handle(ctx, pipeline.Inbound{
		ConversationID: w.ownerID,
		Text:           item.Body,
		ForceMode:      intent.ModeAnalyze,
		Title:          item.Title,
		SourceTag:      w.source.Name(),
	})
	if w.deliver != nil {
		w.deliver(ctx, r)
	}

	// Mark even when the analysis came back degraded; retry loops on
	// a permanently failing item are worse than one bad summary.
	if err := w.ledger.MarkProcessed(w.source.Name(), item.ID); err != nil {
		w.log.Warn("marking item processed failed", "item", item.ID, "error", err)
	}
}
