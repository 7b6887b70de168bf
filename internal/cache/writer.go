package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Writer executes cache writes on a background worker so the request path
// never blocks on, or fails because of, cache population. The queue is
// bounded; when full, the oldest pending write is dropped in favor of the
// new one. A dropped write only lowers the future cache-hit rate.
type Writer struct {
	store  Store
	logger *slog.Logger

	queue  chan write
	onDrop func()

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

type write struct {
	ns    Namespace
	key   string
	value []byte
	ttl   time.Duration
}

// WriterConfig configures the background write queue
type WriterConfig struct {
	// QueueSize bounds pending writes (default 256)
	QueueSize int

	// OnDrop is invoked for each write dropped due to overflow (optional,
	// used to count drops in metrics)
	OnDrop func()
}

// NewWriter creates a background cache writer and starts its worker
func NewWriter(store Store, logger *slog.Logger, cfg WriterConfig) *Writer {
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &Writer{
		store:  store,
		logger: logger.With("component", "cache_writer"),
		queue:  make(chan write, size),
		onDrop: cfg.OnDrop,
		done:   make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run()

	return w
}

// Enqueue schedules a cache write without blocking the caller. Overflow
// drops the oldest pending write.
func (w *Writer) Enqueue(ns Namespace, key string, value []byte, ttl time.Duration) {
	item := write{ns: ns, key: key, value: value, ttl: ttl}

	for {
		select {
		case <-w.done:
			return
		case w.queue <- item:
			return
		default:
		}

		// Queue full: evict the oldest pending write and retry
		select {
		case dropped := <-w.queue:
			w.logger.Warn("cache write queue full, dropping oldest write",
				"namespace", dropped.ns)
			if w.onDrop != nil {
				w.onDrop()
			}
		default:
		}
	}
}

// Close stops accepting writes and drains the queue
func (w *Writer) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
	})
	w.wg.Wait()
}

func (w *Writer) run() {
	defer w.wg.Done()

	for {
		select {
		case item := <-w.queue:
			w.flush(item)
		case <-w.done:
			// Drain whatever is still queued before exiting
			for {
				select {
				case item := <-w.queue:
					w.flush(item)
				default:
					return
				}
			}
		}
	}
}

// flush performs one write; failures are logged and swallowed, never
// surfaced to the request that queued the write
func (w *Writer) flush(item write) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.store.Set(ctx, item.ns, item.key, item.value, item.ttl); err != nil {
		w.logger.Error("cache write failed",
			"namespace", item.ns,
			"error", err)
	}
}
