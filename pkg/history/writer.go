package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tabulark/tabulark/pkg/engine"
	"github.com/tabulark/tabulark/pkg/telemetry"
)

// DefaultWriterBuffer is the queue depth of the async writer.
const DefaultWriterBuffer = 256

// writeTimeout bounds a single store write from the drain loop.
const writeTimeout = 5 * time.Second

// Writer is an asynchronous engine.HistorySink backed by a Store. A
// single goroutine drains the queue so SQLite sees one writer; Record
// never blocks the orchestrator and drops on overflow.
type Writer struct {
	store   Store
	logger  zerolog.Logger
	metrics *telemetry.Metrics

	queue  chan engine.StepRecord
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
	mu     sync.Mutex
}

// NewWriter starts the drain goroutine. bufferSize of zero selects the
// default queue depth.
func NewWriter(store Store, bufferSize int, logger zerolog.Logger) *Writer {
	if bufferSize <= 0 {
		bufferSize = DefaultWriterBuffer
	}
	w := &Writer{
		store:  store,
		logger: logger.With().Str("component", "history").Logger(),
		queue:  make(chan engine.StepRecord, bufferSize),
		done:   make(chan struct{}),
	}
	w.wg.Add(1)
	go w.drain()
	return w
}

// WithMetrics sets the metrics collector.
func (w *Writer) WithMetrics(m *telemetry.Metrics) *Writer {
	w.metrics = m
	return w
}

// Record implements engine.HistorySink. The record is queued; a full
// queue drops it rather than stalling a batch.
func (w *Writer) Record(_ context.Context, rec engine.StepRecord) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("history writer closed")
	}
	w.mu.Unlock()

	select {
	case w.queue <- rec:
		return nil
	default:
		w.metrics.RecordHistoryWrite(false)
		return fmt.Errorf("history queue full, record dropped")
	}
}

// drain writes queued records until Close, then flushes the remainder.
func (w *Writer) drain() {
	defer w.wg.Done()
	for {
		select {
		case rec := <-w.queue:
			w.write(rec)
		case <-w.done:
			for {
				select {
				case rec := <-w.queue:
					w.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) write(rec engine.StepRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	attempt := toAttempt(rec)
	if err := w.store.InsertAttempt(ctx, attempt); err != nil {
		w.metrics.RecordHistoryWrite(false)
		w.logger.Warn().Err(err).
			Str("batch_id", rec.BatchID).
			Int("step", rec.StepIndex).
			Msg("Attempt write failed")
		return
	}
	w.metrics.RecordHistoryWrite(true)
}

// Close stops the writer after flushing queued records.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()
	return nil
}

// toAttempt converts an engine step record to its stored form.
func toAttempt(rec engine.StepRecord) *Attempt {
	a := &Attempt{
		BatchID:   rec.BatchID,
		StepIndex: rec.StepIndex,
		Query:     rec.Query,
		Code:      rec.Code,
		Status:    rec.Status,
		Success:   rec.Success,
		ElapsedMS: rec.ElapsedMS,
		Truncated: rec.Truncated,
		TotalRows: rec.TotalRows,
		CreatedAt: time.Now(),
	}
	if rec.Shape != "" {
		shape := rec.Shape
		a.Shape = &shape
	}
	if rec.Violations != "" {
		violations := rec.Violations
		a.Violations = &violations
	}
	return a
}

// SyncWriter is a synchronous engine.HistorySink for callers that want
// every record durable before the batch result returns, at the cost of
// write latency on the batch path.
type SyncWriter struct {
	store   Store
	metrics *telemetry.Metrics
}

// NewSyncWriter wraps a store in a synchronous sink.
func NewSyncWriter(store Store) *SyncWriter {
	return &SyncWriter{store: store}
}

// WithMetrics sets the metrics collector.
func (w *SyncWriter) WithMetrics(m *telemetry.Metrics) *SyncWriter {
	w.metrics = m
	return w
}

// Record implements engine.HistorySink.
func (w *SyncWriter) Record(ctx context.Context, rec engine.StepRecord) error {
	err := w.store.InsertAttempt(ctx, toAttempt(rec))
	w.metrics.RecordHistoryWrite(err == nil)
	return err
}
