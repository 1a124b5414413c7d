package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// indexTimeout bounds one document write. Writes are detached from Run's
// context so entries already read still land after cancellation.
const indexTimeout = 10 * time.Second

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// DocumentIndexer stores one JSON document under id.
type DocumentIndexer interface {
	Index(ctx context.Context, id string, doc []byte) error
}

// ESIndex writes documents into a single Elasticsearch index.
type ESIndex struct {
	Client *elasticsearch.Client
	Name   string
}

func (ix ESIndex) Index(ctx context.Context, id string, doc []byte) error {
	res, err := ix.Client.Index(
		ix.Name,
		bytes.NewReader(doc),
		ix.Client.Index.WithDocumentID(id),
		ix.Client.Index.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index %s: %s", ix.Name, res.Status())
	}
	return nil
}

// Indexer drains request log entries from Kafka into a document index with a
// fixed pool of workers.
type Indexer struct {
	Reader  MessageReader
	Index   DocumentIndexer
	Workers int
}

// Run blocks until ctx is cancelled or the reader is closed, then waits for
// the workers to finish the entries already read.
func (ix *Indexer) Run(ctx context.Context) {
	workers := ix.Workers
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan kafka.Message, workers*5)
	var wg sync.WaitGroup
	wg.Add(workers)
	for workerID := 0; workerID < workers; workerID++ {
		go func(id int) {
			defer wg.Done()
			ix.work(context.WithoutCancel(ctx), jobs, id)
		}(workerID)
	}

	log.Info("[Indexer] accepting logs...")
	for {
		msg, err := ix.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				break
			}
			log.Errorf("[Indexer] failed to read message from Kafka: %v", err)
			continue
		}
		log.Debugf("[Indexer] received message: %s", string(msg.Value))

		jobs <- msg
	}

	close(jobs)
	wg.Wait()
}

func (ix *Indexer) work(ctx context.Context, jobs <-chan kafka.Message, workerID int) {
	for msg := range jobs {
		var entry LogEntry
		if err := json.Unmarshal(msg.Value, &entry); err != nil {
			log.Errorf("[Indexer][workerID:%d] failed to unmarshal log entry: %v", workerID, err)
			continue
		}

		ictx, cancel := context.WithTimeout(ctx, indexTimeout)
		err := ix.Index.Index(ictx, entry.Service+entry.RequestID, msg.Value)
		cancel()
		if err != nil {
			log.Errorf("[Indexer][workerID:%d] failed to index document: %v", workerID, err)
			continue
		}
		log.Debugf("[Indexer][workerID:%d][%s] log entry indexed", workerID, Shorten(entry.RequestID))
	}
}
