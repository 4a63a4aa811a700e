package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/locate-tracker/internal/domain"
)

func sampleDigest() []domain.TicketSummary {
	return []domain.TicketSummary{
		{ID: "a", TicketNumber: "T-1", JobName: "Oak", Address: "1 Oak", ExpirationDate: time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC), DaysRemaining: 1},
		{ID: "b", TicketNumber: "T-2", JobName: "Elm", Address: "2 Elm", ExpirationDate: time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC), DaysRemaining: 3},
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		recipient string
		want      string
	}{
		{"jane.doe@example.com", "Jane Doe"},
		{"PM1@x.com", "Pm1"},
		{"ops-team@x.com", "Ops Team"},
		{"admin@x.com", "Admin"},
		{"@x.com", "@x.com"},
		{"élodie.ñuñez@x.com", "Élodie Ñuñez"},
		{"ÖSTEN_berg@x.com", "Östen Berg"},
	}
	for _, tc := range tests {
		if got := DisplayName(tc.recipient, "admin@x.com"); got != tc.want {
			t.Errorf("DisplayName(%q) = %q, want %q", tc.recipient, got, tc.want)
		}
	}
}

func TestWebhookDispatcherPostsDigest(t *testing.T) {
	var got Digest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(srv.URL, 5*time.Second, "admin@x.com")
	if err := d.Send(context.Background(), "jane.doe@x.com", sampleDigest()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Recipient != "jane.doe@x.com" || got.RecipientName != "Jane Doe" {
		t.Fatalf("unexpected recipient fields %+v", got)
	}
	if len(got.Tickets) != 2 || got.Tickets[0].TicketNumber != "T-1" || got.Tickets[0].ExpirationDisplay != "January 17, 2024" {
		t.Fatalf("unexpected tickets %+v", got.Tickets)
	}
}

func TestWebhookDispatcherReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "mailbox full", http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(srv.URL, 5*time.Second, "admin@x.com")
	err := d.Send(context.Background(), "pm@x.com", sampleDigest())
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
}

type fakeStream struct {
	args *redis.XAddArgs
	err  error
}

func (f *fakeStream) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = a
	return redis.NewStringResult("1-0", f.err)
}

func TestRedisStreamDispatcher(t *testing.T) {
	stream := &fakeStream{}
	d := NewRedisStreamDispatcher(stream, "notifications:expiring", "admin@x.com")

	if err := d.Send(context.Background(), "admin@x.com", sampleDigest()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if stream.args.Stream != "notifications:expiring" {
		t.Fatalf("stream = %q", stream.args.Stream)
	}
	values := stream.args.Values.(map[string]any)
	var digest Digest
	if err := json.Unmarshal(values["payload"].([]byte), &digest); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if digest.RecipientName != "Admin" || len(digest.Tickets) != 2 {
		t.Fatalf("unexpected digest %+v", digest)
	}

	stream.err = redis.ErrClosed
	if err := d.Send(context.Background(), "pm@x.com", sampleDigest()); err == nil {
		t.Fatal("expected xadd error")
	}
}
