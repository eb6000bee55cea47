package interactions

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/antoniostano/voicebot/internal/observability"
	"github.com/antoniostano/voicebot/internal/policy"
	"github.com/antoniostano/voicebot/internal/reliability"
)

// RecorderOptions tunes the background writer.
type RecorderOptions struct {
	QueueSize    int
	Retries      int
	RetryBase    time.Duration
	RetryCap     time.Duration
	WriteTimeout time.Duration
	RedactPII    bool
}

// Recorder writes records to a Store off the request path. Enqueue never
// blocks: when the queue is full the record is dropped and counted. Write
// failures are retried with capped backoff, then logged and counted.
type Recorder struct {
	store   Store
	opts    RecorderOptions
	metrics *observability.Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan Record
	done   chan struct{}
}

func NewRecorder(store Store, opts RecorderOptions, metrics *observability.Metrics) *Recorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 100 * time.Millisecond
	}
	if opts.RetryCap <= 0 {
		opts.RetryCap = 2 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	r := &Recorder{
		store:   store,
		opts:    opts,
		metrics: metrics,
		queue:   make(chan Record, opts.QueueSize),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Store returns the underlying store for reads.
func (r *Recorder) Store() Store { return r.store }

// Record enqueues rec and reports whether it was accepted.
func (r *Recorder) Record(rec Record) bool {
	if r == nil {
		return false
	}
	rec = stamp(rec)
	if r.opts.RedactPII {
		if redacted, kinds := policy.RedactPII(rec.Content); len(kinds) > 0 {
			rec.Content = redacted
			log.Debug().Strs("kinds", kinds).Str("interaction_type", string(rec.Type)).Msg("redacted interaction content")
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.warn(rec, "closed", nil)
		return false
	}
	select {
	case r.queue <- rec:
		return true
	default:
		r.warn(rec, "dropped", nil)
		return false
	}
}

// Close stops accepting records and waits for queued ones to be written or
// for ctx to end.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		r.write(rec)
	}
}

func (r *Recorder) write(rec Record) {
	var err error
	for attempt := 0; attempt <= r.opts.Retries; attempt++ {
		if attempt > 0 {
			time.Sleep(reliability.ExponentialBackoff(attempt-1, r.opts.RetryBase, r.opts.RetryCap))
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.WriteTimeout)
		var id int64
		id, err = r.store.Append(ctx, rec)
		cancel()
		if err == nil {
			r.metrics.ObserveStoreWrite("ok")
			log.Debug().Int64("interaction_id", id).Str("interaction_type", string(rec.Type)).Msg("interaction recorded")
			return
		}
	}
	r.warn(rec, "failed", err)
}

func (r *Recorder) warn(rec Record, outcome string, err error) {
	r.metrics.ObserveStoreWrite(outcome)
	log.Warn().
		Err(err).
		Str("event", "store_write_warning").
		Str("outcome", outcome).
		Str("interaction_type", string(rec.Type)).
		Str("customer_id", rec.CustomerID).
		Msg("interaction record not persisted")
}
