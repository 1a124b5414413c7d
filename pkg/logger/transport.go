package logger

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

const shipTimeout = 10 * time.Second

type LogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Host       string    `json:"host"`
	StatusCode int       `json:"status_code"`
	RequestID  string    `json:"request_id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Duration   float64   `json:"duration_sec"`
	Service    string    `json:"service"`
	Error      string    `json:"error,omitempty"`
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Transport is an http.RoundTripper that records one LogEntry per outbound
// request and, when a writer is set, ships it to Kafka in the background.
type Transport struct {
	Service string
	Base    http.RoundTripper
	Writer  MessageWriter
}

func New(service string, base http.RoundTripper, w MessageWriter) *Transport {
	return &Transport{Service: service, Base: base, Writer: w}
}

// base resolves the default transport per call so that test interceptors
// installed after construction are honoured.
func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base().RoundTrip(req)

	entry := LogEntry{
		Timestamp: time.Now(),
		Host:      req.URL.Host,
		RequestID: req.Header.Get("X-Request-Id"),
		Method:    req.Method,
		Path:      req.URL.Path,
		Duration:  time.Since(start).Seconds(),
		Service:   t.Service,
	}
	if resp != nil {
		entry.StatusCode = resp.StatusCode
	}
	if err != nil {
		entry.Error = err.Error()
	}

	log.Debugf("[Transport][%s] %s %s -> %d (%.3fs)", Shorten(entry.RequestID), entry.Method, entry.Path, entry.StatusCode, entry.Duration)

	if t.Writer != nil {
		go t.ship(entry)
	}

	return resp, err
}

func (t *Transport) ship(entry LogEntry) {
	jsonEntry, err := json.Marshal(entry)
	if err != nil {
		log.Errorf("[Transport] failed to marshal log entry for request %s", entry.RequestID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shipTimeout)
	defer cancel()
	if err := t.Writer.WriteMessages(ctx, kafka.Message{Value: jsonEntry}); err != nil {
		log.Errorf("[Transport] failed to write log to Kafka: %v", err)
		return
	}
	log.Debugf("[Transport] log entry sent to Kafka request_id:%s", entry.RequestID)
}

// Shorten truncates a string to 6 characters if it is longer than 6, appends '...' at the end,
// otherwise it returns the string unchanged.
func Shorten(s string) string {
	if len(s) > 6 {
		return s[:6] + "..."
	}
	return s
}
