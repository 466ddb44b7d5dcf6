package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Sink delivers one user-facing notification. Implementations wrap email,
// SMS or push transports, which live outside this core.
type Sink interface {
	Notify(ctx context.Context, recipientID, eventType string, payload map[string]string) error
}

// Directory resolves role -> recipient ids for broadcasts.
type Directory interface {
	RecipientsByRole(ctx context.Context, role string) ([]string, error)
}

// Fanout dispatches notifications best-effort: callers treat every method
// as fire-and-forget, and no failure here may fail the lifecycle transition
// that triggered it.
type Fanout struct {
	Sink      Sink
	Directory Directory
}

// Send notifies one recipient. The error is returned for visibility only.
func (f *Fanout) Send(ctx context.Context, recipientID, eventType string, payload map[string]string) error {
	if err := f.Sink.Notify(ctx, recipientID, eventType, payload); err != nil {
		return fmt.Errorf("notify %s: %w", recipientID, err)
	}
	return nil
}

// Broadcast fans out to every recipient with the role. Partial failures are
// collected and joined; remaining sends are not aborted.
func (f *Fanout) Broadcast(ctx context.Context, role, eventType string, payload map[string]string) error {
	if f.Directory == nil {
		return fmt.Errorf("broadcast %s to role %s: no recipient directory configured", eventType, role)
	}
	recipients, err := f.Directory.RecipientsByRole(ctx, role)
	if err != nil {
		return fmt.Errorf("resolve role %s: %w", role, err)
	}

	var (
		mu       sync.Mutex
		failures []error
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, id := range recipients {
		id := id
		g.Go(func() error {
			if err := f.Sink.Notify(ctx, id, eventType, payload); err != nil {
				mu.Lock()
				failures = append(failures, fmt.Errorf("notify %s: %w", id, err))
				mu.Unlock()
			}
			return nil // never cancel siblings
		})
	}
	_ = g.Wait()
	return errors.Join(failures...)
}

// Best runs fn and only logs its error. Wrap every notification issued from
// a lifecycle transition in this.
func Best(what string, fn func() error) {
	if err := fn(); err != nil {
		log.Printf("notification failed (%s): %v", what, err)
	}
}

// LogSink is the default transport: it records the notification and
// succeeds. Real transports are wired at the service boundary.
type LogSink struct{}

func (LogSink) Notify(_ context.Context, recipientID, eventType string, payload map[string]string) error {
	log.Printf("notify recipient=%s event=%s payload=%v", recipientID, eventType, payload)
	return nil
}
