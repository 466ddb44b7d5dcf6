package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

type fakeSink struct {
	mu       sync.Mutex
	notified []string
	failFor  map[string]error
}

func (s *fakeSink) Notify(ctx context.Context, recipientID, eventType string, payload map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[recipientID]; ok {
		return err
	}
	s.notified = append(s.notified, recipientID)
	return nil
}

type fakeDirectory struct {
	recipients map[string][]string
	err        error
}

func (d *fakeDirectory) RecipientsByRole(ctx context.Context, role string) ([]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.recipients[role], nil
}

func TestSend(t *testing.T) {
	sink := &fakeSink{}
	f := &Fanout{Sink: sink}

	if err := f.Send(context.Background(), "cust-1", "order_confirmed", map[string]string{"order_id": "ord-1"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(sink.notified) != 1 || sink.notified[0] != "cust-1" {
		t.Errorf("notified = %v", sink.notified)
	}
}

func TestSendWrapsSinkError(t *testing.T) {
	cause := fmt.Errorf("smtp down")
	sink := &fakeSink{failFor: map[string]error{"cust-1": cause}}
	f := &Fanout{Sink: sink}

	err := f.Send(context.Background(), "cust-1", "order_confirmed", nil)
	if !errors.Is(err, cause) {
		t.Errorf("Send() error = %v, want wrapped %v", err, cause)
	}
}

func TestBroadcastReachesAllRecipients(t *testing.T) {
	sink := &fakeSink{}
	f := &Fanout{
		Sink:      sink,
		Directory: &fakeDirectory{recipients: map[string][]string{"delivery_personnel": {"a1", "a2", "a3"}}},
	}

	if err := f.Broadcast(context.Background(), "delivery_personnel", "new_order", nil); err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}
	if len(sink.notified) != 3 {
		t.Errorf("notified %d recipients, want 3", len(sink.notified))
	}
}

func TestBroadcastPartialFailureDoesNotAbortSiblings(t *testing.T) {
	cause := fmt.Errorf("device token expired")
	sink := &fakeSink{failFor: map[string]error{"a2": cause}}
	f := &Fanout{
		Sink:      sink,
		Directory: &fakeDirectory{recipients: map[string][]string{"delivery_personnel": {"a1", "a2", "a3"}}},
	}

	err := f.Broadcast(context.Background(), "delivery_personnel", "new_order", nil)
	if !errors.Is(err, cause) {
		t.Fatalf("Broadcast() error = %v, want joined %v", err, cause)
	}
	if !strings.Contains(err.Error(), "a2") {
		t.Errorf("error does not name the failed recipient: %v", err)
	}
	if len(sink.notified) != 2 {
		t.Errorf("siblings notified = %d, want 2 despite the failure", len(sink.notified))
	}
}

func TestBroadcastCollectsAllFailures(t *testing.T) {
	e1, e2 := fmt.Errorf("bounce a1"), fmt.Errorf("bounce a3")
	sink := &fakeSink{failFor: map[string]error{"a1": e1, "a3": e2}}
	f := &Fanout{
		Sink:      sink,
		Directory: &fakeDirectory{recipients: map[string][]string{"delivery_personnel": {"a1", "a2", "a3"}}},
	}

	err := f.Broadcast(context.Background(), "delivery_personnel", "new_order", nil)
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Errorf("Broadcast() error = %v, want both failures joined", err)
	}
}

func TestBroadcastDirectoryFailure(t *testing.T) {
	cause := fmt.Errorf("directory unreachable")
	f := &Fanout{Sink: &fakeSink{}, Directory: &fakeDirectory{err: cause}}

	if err := f.Broadcast(context.Background(), "admin", "alert", nil); !errors.Is(err, cause) {
		t.Errorf("Broadcast() error = %v, want %v", err, cause)
	}
}

func TestBroadcastWithoutDirectory(t *testing.T) {
	f := &Fanout{Sink: &fakeSink{}}
	if err := f.Broadcast(context.Background(), "admin", "alert", nil); err == nil {
		t.Error("Broadcast() without a directory must error, not panic")
	}
}

func TestBroadcastNoRecipients(t *testing.T) {
	f := &Fanout{Sink: &fakeSink{}, Directory: &fakeDirectory{recipients: map[string][]string{}}}
	if err := f.Broadcast(context.Background(), "admin", "alert", nil); err != nil {
		t.Errorf("Broadcast() with no recipients error = %v", err)
	}
}

func TestBestSwallowsError(t *testing.T) {
	ran := false
	Best("test notification", func() error {
		ran = true
		return fmt.Errorf("boom")
	})
	if !ran {
		t.Error("Best() did not run the function")
	}
}
