package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/segmentio/kafka-go"
)

type sliceReader struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (r *sliceReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

type memIndex struct {
	mu   sync.Mutex
	docs map[string][]byte
	err  error
}

func (ix *memIndex) Index(ctx context.Context, id string, doc []byte) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.err != nil {
		return ix.err
	}
	ix.docs[id] = doc
	return nil
}

func entryMessage(t *testing.T, e LogEntry) kafka.Message {
	t.Helper()
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("failed to marshal entry: %v", err)
	}
	return kafka.Message{Value: b}
}

func TestIndexer_Run(t *testing.T) {
	r := &sliceReader{msgs: []kafka.Message{
		entryMessage(t, LogEntry{Service: "hoots-client", RequestID: "r1", Method: http.MethodGet, Path: "/hoots"}),
		{Value: []byte("not json")},
		entryMessage(t, LogEntry{Service: "hoots-client", RequestID: "r2", Method: http.MethodPost, Path: "/hoots"}),
	}}
	ix := &memIndex{docs: make(map[string][]byte)}

	(&Indexer{Reader: r, Index: ix, Workers: 3}).Run(context.Background())

	var ids []string
	for id := range ix.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if want := []string{"hoots-clientr1", "hoots-clientr2"}; fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("want documents %v, got %v", want, ids)
	}
}

func TestIndexer_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	blocking := readerFunc(func(ctx context.Context) (kafka.Message, error) {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	})

	done := make(chan struct{})
	go func() {
		(&Indexer{Reader: blocking, Index: &memIndex{docs: map[string][]byte{}}}).Run(ctx)
		close(done)
	}()
	<-done
}

func TestIndexer_RunDrainsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})

	pending := []kafka.Message{
		entryMessage(t, LogEntry{Service: "svc", RequestID: "r1"}),
		entryMessage(t, LogEntry{Service: "svc", RequestID: "r2"}),
	}
	reader := readerFunc(func(ctx context.Context) (kafka.Message, error) {
		if len(pending) == 0 {
			cancel()
			close(release)
			return kafka.Message{}, ctx.Err()
		}
		msg := pending[0]
		pending = pending[1:]
		return msg, nil
	})

	ix := &ctxIndex{release: release, docs: make(map[string]bool)}
	(&Indexer{Reader: reader, Index: ix, Workers: 2}).Run(ctx)

	for _, id := range []string{"svcr1", "svcr2"} {
		if !ix.docs[id] {
			t.Errorf("want %s indexed after cancel, got %v", id, ix.docs)
		}
	}
}

// ctxIndex holds every write until release is closed and refuses writes whose
// context is already done.
type ctxIndex struct {
	release chan struct{}
	mu      sync.Mutex
	docs    map[string]bool
}

func (ix *ctxIndex) Index(ctx context.Context, id string, doc []byte) error {
	<-ix.release
	if err := ctx.Err(); err != nil {
		return err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.docs[id] = true
	return nil
}

type readerFunc func(ctx context.Context) (kafka.Message, error)

func (f readerFunc) ReadMessage(ctx context.Context) (kafka.Message, error) { return f(ctx) }

func TestESIndex_Index(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/broken/_doc/x" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"bad"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"result":"created"}`))
	}))
	defer srv.Close()

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if err := (ESIndex{Client: es, Name: "logs"}).Index(context.Background(), "svc-r1", []byte(`{}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/logs/_doc/svc-r1" || gotMethod != http.MethodPut {
		t.Errorf("want PUT /logs/_doc/svc-r1, got %s %s", gotMethod, gotPath)
	}

	if err := (ESIndex{Client: es, Name: "broken"}).Index(context.Background(), "x", []byte(`{}`)); err == nil {
		t.Error("want error for a rejected document")
	}
}
