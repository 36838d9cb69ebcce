package recorder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mercator-hq/verdict/pkg/decisionlog"
	"mercator-hq/verdict/pkg/table"
)

// Config contains configuration for the decision recorder.
type Config struct {
	// Enabled enables decision recording.
	Enabled bool

	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds both waiting for buffer space and a single
	// storage write.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// RedactFields lists request fields never written to storage.
	RedactFields []string

	// OnDrop is called for every record dropped on a full buffer.
	OnDrop func(record *decisionlog.Record)
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:      true,
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Stats counts recorder outcomes since creation.
type Stats struct {
	Recorded int64 `json:"recorded"`
	Dropped  int64 `json:"dropped"`
	Failed   int64 `json:"failed"`
}

// Recorder writes decision records asynchronously.
type Recorder struct {
	storage    decisionlog.Storage
	config     *Config
	recordChan chan *decisionlog.Record
	wg         sync.WaitGroup
	done       chan struct{}
	closeOnce  sync.Once
	closed     atomic.Bool
	logger     *slog.Logger

	recorded atomic.Int64
	dropped  atomic.Int64
	failed   atomic.Int64
}

// NewRecorder creates a recorder over storage and starts its worker.
func NewRecorder(storage decisionlog.Storage, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = DefaultConfig().AsyncBuffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}

	r := &Recorder{
		storage:    storage,
		config:     config,
		recordChan: make(chan *decisionlog.Record, config.AsyncBuffer),
		done:       make(chan struct{}),
		logger:     slog.Default().With("component", "decisionlog.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("decision recorder initialized",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
		"redact_fields", len(config.RedactFields),
	)

	return r
}

// NewRecord builds a record for one solve. d is nil when the solve failed.
func NewRecord(slug string, version int, req table.Request, d *table.Decision, solveErr error) *decisionlog.Record {
	rec := &decisionlog.Record{
		Slug:     slug,
		Version:  version,
		Request:  req,
		SolvedAt: time.Now().UTC(),
	}
	if d != nil {
		rec.RowID = d.RowID
		rec.Fallback = d.Fallback
		rec.Response = d.Response
		rec.Duration = d.Duration
	}
	if solveErr != nil {
		rec.Error = solveErr.Error()
	}
	return rec
}

// Record completes the record (ID, hash, redaction) and queues it.
// It returns immediately and never waits on storage.
func (r *Recorder) Record(ctx context.Context, record *decisionlog.Record) error {
	if !r.config.Enabled {
		return nil
	}
	if r.closed.Load() {
		return decisionlog.NewRecorderError(record.ID, decisionlog.ErrRecorderClosed)
	}

	if record.ID == "" {
		record.ID = newRecordID()
	}
	if record.SolvedAt.IsZero() {
		record.SolvedAt = time.Now().UTC()
	}
	if record.RequestHash == "" {
		record.RequestHash = HashRequest(record.Request)
	}
	record.Request = Redact(record.Request, r.config.RedactFields)

	select {
	case r.recordChan <- record:
		return nil
	default:
	}

	timer := time.NewTimer(r.config.WriteTimeout)
	defer timer.Stop()

	select {
	case r.recordChan <- record:
		return nil
	case <-timer.C:
		r.drop(record, "decision record channel full, dropping record")
		return decisionlog.NewRecorderError(record.ID, decisionlog.ErrBufferFull)
	case <-ctx.Done():
		r.drop(record, "context cancelled, dropping record")
		return decisionlog.NewRecorderError(record.ID, ctx.Err())
	case <-r.done:
		r.drop(record, "recorder shutting down, dropping record")
		return decisionlog.NewRecorderError(record.ID, decisionlog.ErrRecorderClosed)
	}
}

// Stats returns the outcome counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Recorded: r.recorded.Load(),
		Dropped:  r.dropped.Load(),
		Failed:   r.failed.Load(),
	}
}

// Close drains the queue and waits for pending writes. It is idempotent.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.logger.Info("shutting down decision recorder")
		r.closed.Store(true)
		close(r.done)
		r.wg.Wait()
		r.logger.Info("decision recorder shut down complete", "recorded", r.recorded.Load(), "dropped", r.dropped.Load())
	})
	return nil
}

func (r *Recorder) drop(record *decisionlog.Record, msg string) {
	r.dropped.Add(1)
	r.logger.Error(msg,
		"record_id", record.ID,
		"slug", record.Slug,
		"channel_capacity", r.config.AsyncBuffer,
	)
	if r.config.OnDrop != nil {
		r.config.OnDrop(record)
	}
}

// worker drains the channel and writes records to storage.
func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case record := <-r.recordChan:
			r.writeRecord(record)

		case <-r.done:
			r.logger.Info("draining decision channel before shutdown",
				"pending_count", len(r.recordChan),
			)
			for {
				select {
				case record := <-r.recordChan:
					r.writeRecord(record)
				default:
					return
				}
			}
		}
	}
}

// writeRecord writes a single record to storage.
func (r *Recorder) writeRecord(record *decisionlog.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Store(ctx, record); err != nil {
		r.failed.Add(1)
		r.logger.Error("failed to store decision record",
			"record_id", record.ID,
			"slug", record.Slug,
			"error", err,
		)
		return
	}
	r.recorded.Add(1)

	duration := time.Since(start)
	r.logger.Debug("decision recorded",
		"record_id", record.ID,
		"slug", record.Slug,
		"row_id", record.RowID,
		"duration_ms", duration.Milliseconds(),
	)

	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow decision write",
			"record_id", record.ID,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}

func newRecordID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
