package db

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

type pendingWrite struct {
	key   string
	value []byte
}

// Writer queues cache writes so a slow disk never holds up a load cycle, and
// tidies the database on a fixed interval while it runs.
type Writer struct {
	store     *Store
	queue     chan pendingWrite
	tidyEvery time.Duration
	retention time.Duration
}

func NewWriter(store *Store, retention time.Duration) *Writer {
	return &Writer{
		store:     store,
		queue:     make(chan pendingWrite, 64),
		tidyEvery: 5 * time.Minute,
		retention: retention,
	}
}

// Get reads through to the store
func (writer *Writer) Get(ctx context.Context, key string) ([]byte, error) {
	return writer.store.Get(ctx, key)
}

// Set enqueues a write. When the queue is full the write is dropped.
func (writer *Writer) Set(ctx context.Context, key string, value []byte) error {
	select {
	case writer.queue <- pendingWrite{key: key, value: append([]byte(nil), value...)}:
	default:
		log.WithField("key", key).Warn("Cache write queue full, dropping write")
	}
	return nil
}

// Subscribe drains the write queue until ctx is done
func (writer *Writer) Subscribe(ctx context.Context) {
	ticker := time.NewTicker(writer.tidyEvery)
	defer ticker.Stop()

	if _, err := writer.store.Tidy(ctx, writer.retention); err != nil {
		log.WithError(err).Error("Error tidying cache database")
	}

	for {
		select {
		case <-ctx.Done():
			writer.drain()
			return

		case <-ticker.C:
			if _, err := writer.store.Tidy(ctx, writer.retention); err != nil {
				log.WithError(err).Error("Error tidying cache database")
			}

		case write := <-writer.queue:
			writer.write(ctx, write)
		}
	}
}

// drain flushes whatever is still queued on shutdown
func (writer *Writer) drain() {
	for {
		select {
		case write := <-writer.queue:
			writer.write(context.Background(), write)
		default:
			return
		}
	}
}

func (writer *Writer) write(ctx context.Context, write pendingWrite) {
	if err := writer.store.Set(ctx, write.key, write.value); err != nil {
		log.WithFields(log.Fields{
			"key":   write.key,
			"error": err,
		}).Error("Error writing cache entry")
	}
}
