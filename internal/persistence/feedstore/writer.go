package feedstore

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"kisfeed/internal/config"
	"kisfeed/pkg/feed"
)

// Writer drains the record queue into the store. Bars are buffered and
// flushed in batches, chain snapshots are folded into option matrices and
// written as they arrive.
type Writer struct {
	store   *Store
	builder *feed.Builder
	queue   chan feed.Record

	pending    []feed.Bar
	batchSize  int
	flushEvery time.Duration
}

// NewWriter sizes the queue and batch window from config.
func NewWriter(store *Store, cfg config.BatchConf) *Writer {
	return &Writer{
		store:      store,
		builder:    feed.NewBuilder(),
		queue:      make(chan feed.Record, cfg.QueueDepth),
		pending:    make([]feed.Bar, 0, cfg.Size),
		batchSize:  cfg.Size,
		flushEvery: time.Duration(cfg.FlushSeconds) * time.Second,
	}
}

// Source exposes the queue for producers that write directly to a channel.
func (w *Writer) Source() chan<- feed.Record {
	return w.queue
}

// Enqueue adds a record without blocking. A full queue drops the record and
// reports false.
func (w *Writer) Enqueue(rec feed.Record) bool {
	select {
	case w.queue <- rec:
		return true
	default:
		logx.Errorf("feedstore: queue full, dropping %s record", rec.Kind())
		return false
	}
}

// Run consumes the queue until ctx is cancelled, then drains what is left
// and performs a final flush.
func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.drain()
			w.flush(context.Background())
			return
		case rec := <-w.queue:
			w.ingest(ctx, rec)
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Writer) drain() {
	for {
		select {
		case rec := <-w.queue:
			w.ingest(context.Background(), rec)
		default:
			return
		}
	}
}

func (w *Writer) ingest(ctx context.Context, rec feed.Record) {
	switch rec := rec.(type) {
	case feed.Bar:
		w.pending = append(w.pending, rec)
		if len(w.pending) >= w.batchSize {
			w.flush(ctx)
		}
	case feed.ChainSnapshot:
		matrix, ok := w.builder.Apply(rec)
		if !ok {
			return
		}
		if err := w.store.UpsertMatrix(ctx, matrix); err != nil {
			logx.WithContext(ctx).Errorf("feedstore: upsert matrix underlying=%s err=%v", matrix.UnderlyingSymbol, err)
		}
	default:
		logx.Errorf("feedstore: unsupported record kind %s", rec.Kind())
	}
}

// flush writes buffered bars. A failed batch is logged and discarded so the
// buffer cannot grow without bound while the database is down.
func (w *Writer) flush(ctx context.Context) {
	if len(w.pending) == 0 {
		return
	}
	if err := w.store.UpsertBars(ctx, w.pending); err != nil {
		logx.WithContext(ctx).Errorf("feedstore: flush %d bars err=%v", len(w.pending), err)
	}
	w.pending = w.pending[:0]
}
