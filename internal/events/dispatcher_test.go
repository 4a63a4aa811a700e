package events

import (
	"context"
	"errors"
	"testing"
)

func TestPublishContinuesAfterHandlerError(t *testing.T) {
	var failures []error
	d := NewInMemoryDispatcher(func(_ Event, err error) { failures = append(failures, err) })

	calls := 0
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls++
		return errors.New("first failed")
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls++
		return nil
	})
	d.Subscribe(EventTicketDeleted, func(context.Context, Event) error {
		t.Fatal("unrelated handler invoked")
		return nil
	})

	if err := d.Publish(context.Background(), Event{Type: EventTicketCreated}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected both handlers to run, got %d", calls)
	}
	if len(failures) != 1 {
		t.Fatalf("expected one reported failure, got %d", len(failures))
	}
}
