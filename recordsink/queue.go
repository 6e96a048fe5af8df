package recordsink

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	events "github.com/docker/go-events"

	"github.com/papermake/papermake/internal/dcontext"
)

// Backend is the durable store a Sink drains records into.
type Backend interface {
	Append(ctx context.Context, r Record) error
	Close() error
}

// DefaultQueueSize bounds the number of records a Sink will hold
// in-memory awaiting write to the backend.
const DefaultQueueSize = 256

// DefaultMaxRetries bounds how many times Sink attempts a single record
// against a failing backend, the first attempt included, before giving
// up on it.
const DefaultMaxRetries = 5

// Sink accepts render records off the render pipeline's hot path and
// writes them to a Backend on a background goroutine. Write never
// blocks beyond enqueuing into a bounded channel (spec §4.10): the
// render itself always succeeds from the caller's perspective once a
// PDF has been produced and stored, regardless of the sink's state.
//
// Grounded on the teacher's notifications.eventQueue, but bounded: the
// teacher's queue is an unbounded container/list guarded by a
// sync.Cond, which spec §4.10 explicitly forbids ("writes MUST NOT
// block the caller beyond a bounded queue").
type Sink struct {
	backend Backend
	queue   chan queuedRecord
	done    chan struct{}
	closed  atomic.Bool
	wg      sync.WaitGroup

	mu        sync.Mutex
	dropped   int64
	onExhaust func(r Record, attempts int)
}

type queuedRecord struct {
	record   Record
	attempts int
}

// New constructs a Sink writing to backend, with an in-memory queue
// bounded at size (DefaultQueueSize if size <= 0). onExhaust, if
// non-nil, is called — synchronously, off the background goroutine —
// whenever a record exhausts DefaultMaxRetries against a failing
// backend; it is the operator-visible alert spec §4.10 requires.
func New(backend Backend, size int, onExhaust func(r Record, attempts int)) *Sink {
	if size <= 0 {
		size = DefaultQueueSize
	}
	s := &Sink{
		backend:   backend,
		queue:     make(chan queuedRecord, size),
		done:      make(chan struct{}),
		onExhaust: onExhaust,
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Write enqueues r for asynchronous append. If the queue is saturated,
// Write retries the enqueue for a short grace period rather than
// failing outright (spec §4.10: "enqueued for retry up to a configured
// limit"); only if the queue is still full after that grace period —
// meaning the backend has fallen far behind — does Write report
// saturation to the caller, who MUST still treat the render itself as
// successful.
func (s *Sink) Write(r Record) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}

	select {
	case s.queue <- queuedRecord{record: r}:
		return nil
	default:
	}

	timer := time.NewTimer(50 * time.Millisecond)
	defer timer.Stop()
	select {
	case s.queue <- queuedRecord{record: r}:
		return nil
	case <-timer.C:
		return ErrQueueSaturated
	case <-s.done:
		return ErrSinkClosed
	}
}

// EventSink adapts Sink to events.Sink, so a Record stream can be
// handed to anything built against the docker/go-events vocabulary —
// e.g. a future fan-out bridge to an external analytics warehouse,
// which spec.md's Non-goals keep out of this core but explicitly allow
// bolting on externally.
type EventSink struct {
	*Sink
}

// Write implements events.Sink by asserting event to Record.
func (e EventSink) Write(event events.Event) error {
	r, ok := event.(Record)
	if !ok {
		return fmt.Errorf("recordsink: EventSink.Write: expected Record, got %T", event)
	}
	return e.Sink.Write(r)
}

var _ events.Sink = EventSink{}

// Close stops accepting new records, waits for the queue to drain, and
// closes the backend. The queue channel itself is never closed: Close
// only signals the flag Write checks, so a Write racing a concurrent
// Close can never send on a closed channel.
func (s *Sink) Close() error {
	s.closed.Store(true)
	close(s.done)
	s.wg.Wait()
	return s.backend.Close()
}

func (s *Sink) run() {
	defer s.wg.Done()
	ctx := context.Background()

	for {
		select {
		case qr := <-s.queue:
			s.writeWithRetry(ctx, qr)
		case <-s.done:
			s.drain(ctx)
			return
		}
	}
}

// drain flushes whatever is left in the queue after Close has been
// signaled, without blocking for new arrivals.
func (s *Sink) drain(ctx context.Context) {
	for {
		select {
		case qr := <-s.queue:
			s.writeWithRetry(ctx, qr)
		default:
			return
		}
	}
}

func (s *Sink) writeWithRetry(ctx context.Context, qr queuedRecord) {
	err := s.backend.Append(ctx, qr.record)
	if err == nil {
		return
	}

	qr.attempts++
	if qr.attempts >= DefaultMaxRetries {
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		dcontext.GetLogger(ctx).Errorf("recordsink: dropping render record %s after %d attempts: %v", qr.record.RenderID, qr.attempts, err)
		if s.onExhaust != nil {
			s.onExhaust(qr.record, qr.attempts)
		}
		return
	}

	dcontext.GetLogger(ctx).Warnf("recordsink: retrying render record %s (attempt %d): %v", qr.record.RenderID, qr.attempts, err)
	select {
	case s.queue <- qr:
	default:
		// Queue is full of newer work; drop this retry rather than
		// block the drain loop indefinitely.
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		if s.onExhaust != nil {
			s.onExhaust(qr.record, qr.attempts)
		}
	}
}

// Dropped reports how many records have been permanently dropped
// (either retry-exhausted or displaced from a full queue).
func (s *Sink) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
