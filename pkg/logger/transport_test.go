package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

func TestMain(m *testing.M) {
	log.SetLevel(log.PanicLevel)
	exitCode := m.Run()
	os.Exit(exitCode)
}

type chanWriter struct {
	msgs chan kafka.Message
	err  error
}

func (w *chanWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		w.msgs <- m
	}
	return w.err
}

func TestTransport_RoundTripShipsEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	w := &chanWriter{msgs: make(chan kafka.Message, 1)}
	client := &http.Client{Transport: New("hoots-client", nil, w)}

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/hoots", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("X-Request-Id", "req-123456789")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("want status code %v, got %v", http.StatusTeapot, resp.StatusCode)
	}

	select {
	case msg := <-w.msgs:
		var entry LogEntry
		if err := json.Unmarshal(msg.Value, &entry); err != nil {
			t.Fatalf("failed to unmarshal log entry: %v", err)
		}
		if entry.StatusCode != http.StatusTeapot {
			t.Errorf("want logged status %v, got %v", http.StatusTeapot, entry.StatusCode)
		}
		if entry.RequestID != "req-123456789" {
			t.Errorf("want request id %q, got %q", "req-123456789", entry.RequestID)
		}
		if entry.Method != http.MethodGet || entry.Path != "/hoots" {
			t.Errorf("want GET /hoots, got %s %s", entry.Method, entry.Path)
		}
		if entry.Service != "hoots-client" {
			t.Errorf("want service %q, got %q", "hoots-client", entry.Service)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("log entry was not shipped")
	}
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, fmt.Errorf("connection refused")
}

func TestTransport_RoundTripRecordsError(t *testing.T) {
	w := &chanWriter{msgs: make(chan kafka.Message, 1)}
	tr := New("hoots-client", failingTransport{}, w)

	req := httptest.NewRequest(http.MethodDelete, "http://api.test/hoots/1", nil)
	if _, err := tr.RoundTrip(req); err == nil {
		t.Fatal("want transport error")
	}

	select {
	case msg := <-w.msgs:
		var entry LogEntry
		if err := json.Unmarshal(msg.Value, &entry); err != nil {
			t.Fatalf("failed to unmarshal log entry: %v", err)
		}
		if entry.Error == "" {
			t.Error("want error recorded in log entry")
		}
		if entry.StatusCode != 0 {
			t.Errorf("want zero status code, got %v", entry.StatusCode)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("log entry was not shipped")
	}
}

func TestShorten(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"abcdef", "abcdef"},
		{"abcdefg", "abcdef..."},
	}
	for _, tt := range tests {
		if got := Shorten(tt.in); got != tt.want {
			t.Errorf("Shorten(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatusRecorder(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := NewStatusRecorder(rec)
	if sr.Status() != http.StatusOK {
		t.Errorf("want default status %v, got %v", http.StatusOK, sr.Status())
	}

	sr.Header().Set("Content-Type", "application/json")
	sr.WriteHeader(http.StatusForbidden)
	if _, err := sr.Write([]byte(`{"err":"no"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sr.Status() != http.StatusForbidden || rec.Code != http.StatusForbidden {
		t.Errorf("want status %v recorded and passed on, got %v / %v", http.StatusForbidden, sr.Status(), rec.Code)
	}
	if rec.Body.String() != `{"err":"no"}` || rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("want body and headers passed through, got %q %v", rec.Body.String(), rec.Header())
	}
}
