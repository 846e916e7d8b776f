// Package notify delivers completed analyses to external destinations.
// Deliveries are best-effort side effects: failures are logged and
// never reach the reply path.
package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Record is one item worth of side-channel output.
type Record struct {
	Title     string
	Body      string
	SourceTag string
	Metadata  map[string]string
}

// Notifier delivers a record to one destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, rec Record) error
}

const deliveryTimeout = 15 * time.Second

// Dispatcher fans a record out to every configured notifier
// concurrently. It recovers from panicking notifiers so one bad
// destination cannot take down the caller.
type Dispatcher struct {
	notifiers []Notifier
	log       *slog.Logger
}

func NewDispatcher(log *slog.Logger, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{notifiers: notifiers, log: log}
}

// Dispatch delivers rec to all destinations and waits for completion.
// Callers on a latency-sensitive path should invoke it in a goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, rec Record) {
	var wg sync.WaitGroup
	for _, n := range d.notifiers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.log.Error("notifier panicked", "notifier", n.Name(), "panic", r)
				}
			}()

			sendCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
			defer cancel()
			if err := n.Send(sendCtx, rec); err != nil {
				d.log.Warn("side-channel delivery failed", "notifier", n.Name(), "title", rec.Title, "error", err)
				return
			}
			d.log.Debug("side-channel delivery ok", "notifier", n.Name(), "title", rec.Title)
		}()
	}
	wg.Wait()
}

func httpClient() *http.Client {
	return &http.Client{Timeout: deliveryTimeout}
}
