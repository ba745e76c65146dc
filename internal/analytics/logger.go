package analytics

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/therapy-booking/internal/requestid"
	"github.com/p-blackswan/therapy-booking/internal/store"
)

// Recorder receives delivery outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	RecordEvent(event, result string)
	SetQueueDepth(n int)
}

// DeadLetterWriter persists events no sink accepted.
type DeadLetterWriter interface {
	SaveDeadLetter(ctx context.Context, dl *store.DeadLetter) error
}

// Delivery outcomes reported to the Recorder.
const (
	ResultQueued    = "queued"
	ResultDelivered = "delivered"
	ResultDropped   = "dropped"
	ResultFailed    = "failed"
)

const deadLetterTimeout = 5 * time.Second

// Options configures a Logger.
type Options struct {
	Workers   int
	QueueSize int
	// SendTimeout bounds a single delivery attempt chain.
	SendTimeout time.Duration
	// RetryAfter is when a dead-lettered event first becomes eligible for
	// replay.
	RetryAfter  time.Duration
	DeadLetters DeadLetterWriter
	Recorder    Recorder
}

// Logger queues events and delivers them from a fixed worker pool. Log never
// blocks; a full queue drops the event.
type Logger struct {
	sink   Sink
	opts   Options
	logger zerolog.Logger
	queue  chan Event
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewLogger creates a Logger and starts its workers.
func NewLogger(sink Sink, opts Options, logger zerolog.Logger) *Logger {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = time.Minute
	}

	l := &Logger{
		sink:   sink,
		opts:   opts,
		logger: logger.With().Str("component", "analytics").Logger(),
		queue:  make(chan Event, opts.QueueSize),
		now:    time.Now,
	}

	for i := 0; i < opts.Workers; i++ {
		l.wg.Add(1)
		go l.worker()
	}

	return l
}

// Log enqueues an event. It returns false when the event was dropped because
// the queue is full or the logger is closed.
func (l *Logger) Log(ctx context.Context, name EventName, data map[string]interface{}) bool {
	ev := Event{
		ID:        uuid.New().String(),
		Name:      name,
		Timestamp: l.now().UTC(),
		Data:      data,
	}
	if id, ok := requestid.Lookup(ctx); ok {
		ev.RequestID = id
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		l.record(name, ResultDropped)
		return false
	}

	select {
	case l.queue <- ev:
		l.record(name, ResultQueued)
		l.depth()
		return true
	default:
		l.logger.Warn().Str("event", string(name)).Msg("analytics queue full, dropping event")
		l.record(name, ResultDropped)
		return false
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (l *Logger) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	l.wg.Wait()
}

func (l *Logger) worker() {
	defer l.wg.Done()

	for ev := range l.queue {
		l.depth()
		l.deliver(ev)
	}
}

func (l *Logger) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), l.opts.SendTimeout)
	defer cancel()

	err := l.sink.Send(ctx, ev)
	if err == nil {
		l.record(ev.Name, ResultDelivered)
		return
	}

	l.record(ev.Name, ResultFailed)
	l.logger.Error().Err(err).
		Str("event", string(ev.Name)).
		Str("event_id", ev.ID).
		Msg("analytics delivery failed")

	if l.opts.DeadLetters == nil {
		return
	}

	payload, mErr := json.Marshal(ev)
	if mErr != nil {
		l.logger.Error().Err(mErr).Str("event_id", ev.ID).Msg("failed to encode dead letter")
		return
	}

	dl := &store.DeadLetter{
		ID:          ev.ID,
		EventName:   string(ev.Name),
		Payload:     string(payload),
		Error:       err.Error(),
		NextRetryAt: l.now().Add(l.opts.RetryAfter).UnixMilli(),
	}

	// ctx may already be past its deadline when the send timed out.
	saveCtx, saveCancel := context.WithTimeout(context.Background(), deadLetterTimeout)
	defer saveCancel()
	if sErr := l.opts.DeadLetters.SaveDeadLetter(saveCtx, dl); sErr != nil {
		l.logger.Error().Err(sErr).Str("event_id", ev.ID).Msg("failed to save dead letter")
	}
}

func (l *Logger) record(name EventName, result string) {
	if l.opts.Recorder != nil {
		l.opts.Recorder.RecordEvent(string(name), result)
	}
}

func (l *Logger) depth() {
	if l.opts.Recorder != nil {
		l.opts.Recorder.SetQueueDepth(len(l.queue))
	}
}
