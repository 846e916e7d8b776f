package convo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/yskim/aihub/internal/provider"
)

// Generator is the single provider call compression needs.
type Generator interface {
	Generate(ctx context.Context, prompt string) provider.Result
}

// Compactor watches conversation volume and folds old history into a
// single summary message once it crosses the threshold.
type Compactor struct {
	store       *Store
	gen         Generator
	threshold   int // total character volume that triggers compression
	maxMessages int // transcript window handed to the summarizer
	retain      int // newest messages kept verbatim
	log         *slog.Logger

	mu    sync.Mutex
	locks map[string]*convLock
}

// convLock serializes compression per conversation. Entries are
// refcounted and dropped from the map once the last holder releases,
// so the map does not grow with every conversation ever seen.
type convLock struct {
	mu   sync.Mutex
	refs int
}

func NewCompactor(store *Store, gen Generator, threshold, maxMessages, retainTurns int, log *slog.Logger) *Compactor {
	return &Compactor{
		store:       store,
		gen:         gen,
		threshold:   threshold,
		maxMessages: maxMessages,
		retain:      retainTurns * 2,
		log:         log,
		locks:       make(map[string]*convLock),
	}
}

const compressPrompt = `Condense the conversation below into a summary of at most 300 words.
Keep decisions, facts, names, and open questions; drop pleasantries.
Write in the conversation's dominant language.

%s`

// CompressIfNeeded compresses the conversation when its stored volume
// exceeds the threshold. Failure leaves the conversation unmodified.
// Compression of the same conversation is serialized; concurrent
// callers wait rather than race.
func (c *Compactor) CompressIfNeeded(ctx context.Context, conversationID string) error {
	volume, err := c.store.Volume(conversationID)
	if err != nil {
		return fmt.Errorf("checking conversation volume: %w", err)
	}
	if volume <= c.threshold {
		return nil
	}

	lock := c.lockFor(conversationID)
	lock.mu.Lock()
	defer c.release(conversationID, lock)

	// Re-check under the lock: a concurrent caller may have already
	// compressed.
	volume, err = c.store.Volume(conversationID)
	if err != nil {
		return fmt.Errorf("checking conversation volume: %w", err)
	}
	if volume <= c.threshold {
		return nil
	}

	recent, err := c.store.Recent(conversationID, c.maxMessages)
	if err != nil {
		return fmt.Errorf("loading conversation for compression: %w", err)
	}
	if len(recent) == 0 {
		return nil
	}

	// Normally the newest messages survive verbatim. When the tail
	// alone already exceeds the threshold (a single oversized message,
	// say), fold it too; otherwise every later turn would re-run these
	// checks without ever shrinking anything.
	keep := c.retain
	if len(recent) <= keep {
		keep = len(recent) - 1
	}

	res := c.gen.Generate(ctx, fmt.Sprintf(compressPrompt, transcript(recent)))
	if res.Kind != provider.KindSuccess {
		return fmt.Errorf("summarizing conversation: %s", res.Reason)
	}

	summary := "Earlier conversation summary: " + res.Text
	if err := c.store.Compact(conversationID, keep, summary); err != nil {
		return fmt.Errorf("compacting conversation: %w", err)
	}
	c.log.Info("conversation compressed", "conversation", conversationID, "volume", volume)
	return nil
}

func (c *Compactor) lockFor(conversationID string) *convLock {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[conversationID]
	if !ok {
		lock = &convLock{}
		c.locks[conversationID] = lock
	}
	lock.refs++
	return lock
}

func (c *Compactor) release(conversationID string, lock *convLock) {
	lock.mu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(c.locks, conversationID)
	}
}

// transcript renders messages as "role: content" lines for the
// summarization prompt.
func transcript(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
