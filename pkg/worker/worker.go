// Package worker provides the fixed-size worker pool of the serving shell
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/routecalc/prefork/pkg/types"
)

// State defines the lifecycle state of a Worker
type State int32

const (
	// StateStarting represents a worker that has been created but is not
	// yet accepting connections
	StateStarting State = iota
	// StateIdle represents a worker waiting for a connection
	StateIdle
	// StateBusy represents a worker processing a connection
	StateBusy
	// StateTimedOut represents a worker whose request exceeded the timeout
	StateTimedOut
	// StateDead represents a terminated worker
	StateDead
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StateTimedOut:
		return "timed-out"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// ConnHandler processes one accepted connection end to end: read the
// request, invoke the application, write the response. A non-nil error is
// a crash: the connection is closed abruptly and the worker is replaced.
type ConnHandler func(ctx context.Context, conn net.Conn) error

// Worker represents a single request-handling worker. It owns at most one
// connection at a time; all transitions out of Busy are serialized through
// its mutex so a request can never be reported both completed and timed out.
type Worker struct {
	id       int
	state    int32 // atomic State
	connChan chan net.Conn
	handler  ConnHandler
	clock    types.Clock
	log      *slog.Logger

	ready chan struct{}
	quit  chan struct{}
	done  chan struct{}

	// guards exits from Busy and the per-request fields below
	mu        sync.Mutex
	conn      net.Conn
	startedAt time.Time
	cancel    context.CancelFunc
	cause     error

	// pool callback invoked when the worker dies mid-request
	onCrash func(w *Worker, err error)

	totalProcessed int64
	totalFailed    int64
}

func newWorker(id int, connChan chan net.Conn, handler ConnHandler, clock types.Clock, log *slog.Logger) *Worker {
	return &Worker{
		id:       id,
		state:    int32(StateStarting),
		connChan: connChan,
		handler:  handler,
		clock:    clock,
		log:      log,
		ready:    make(chan struct{}),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// ID returns the worker ID. IDs are stable for the worker's lifetime and
// never reused within a pool.
func (w *Worker) ID() int {
	return w.id
}

// State returns the current worker state
func (w *Worker) State() State {
	return State(atomic.LoadInt32(&w.state))
}

// run is the worker loop. It transitions Starting -> Idle, then serves one
// connection at a time until the pool shuts down or the worker dies.
func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	atomic.StoreInt32(&w.state, int32(StateIdle))
	close(w.ready)

	for {
		select {
		case <-ctx.Done():
			w.retire(nil)
			return
		case <-w.quit:
			w.retire(nil)
			return
		case conn, ok := <-w.connChan:
			if !ok {
				w.retire(nil)
				return
			}
			if !w.serve(ctx, conn) {
				return
			}
		}
	}
}

// serve processes a single connection. It returns false when the worker
// died (crash or timeout kill) and must leave the loop.
func (w *Worker) serve(ctx context.Context, conn net.Conn) bool {
	reqCtx, cancel := context.WithCancel(ctx)

	w.mu.Lock()
	w.conn = conn
	w.startedAt = w.clock.Now()
	w.cancel = cancel
	atomic.StoreInt32(&w.state, int32(StateBusy))
	w.mu.Unlock()

	err := w.invoke(reqCtx, conn)
	cancel()

	w.mu.Lock()
	if State(atomic.LoadInt32(&w.state)) != StateBusy {
		// The monitor timed this request out while the handler was still
		// running. The connection is closed and a replacement owns the
		// channel now; retire quietly.
		w.mu.Unlock()
		return false
	}
	w.conn = nil
	w.startedAt = time.Time{}
	w.cancel = nil

	if err != nil {
		cause := fmt.Errorf("%w: %w", types.ErrWorkerCrashed, err)
		w.cause = cause
		atomic.StoreInt32(&w.state, int32(StateDead))
		atomic.AddInt64(&w.totalFailed, 1)
		w.mu.Unlock()
		// No response can be synthesized on behalf of a dead worker; the
		// client sees an abrupt close.
		conn.Close()
		if w.onCrash != nil {
			w.onCrash(w, cause)
		}
		return false
	}

	atomic.StoreInt32(&w.state, int32(StateIdle))
	atomic.AddInt64(&w.totalProcessed, 1)
	w.mu.Unlock()
	conn.Close()
	return true
}

// invoke runs the connection handler with panic recovery
func (w *Worker) invoke(ctx context.Context, conn net.Conn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			var buf [4096]byte
			n := runtime.Stack(buf[:], false)

			switch v := r.(type) {
			case error:
				err = types.NewWorkerError("handler", w.id, fmt.Errorf("panic: %w", v))
			default:
				err = types.NewWorkerError("handler", w.id, fmt.Errorf("panic: %v", v))
			}
			if we, ok := err.(*types.WorkerError); ok {
				we.WithContext("stack_trace", string(buf[:n]))
			}
		}
	}()

	return w.handler(ctx, conn)
}

// abort kills a Busy worker from outside: the in-flight connection is
// forcibly closed and the handler context cancelled. Returns false if the
// worker was not Busy, i.e. its request already completed. Serialization
// with serve happens through the mutex.
func (w *Worker) abort(cause error) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if State(atomic.LoadInt32(&w.state)) != StateBusy {
		return false
	}

	atomic.StoreInt32(&w.state, int32(StateTimedOut))
	w.cause = cause
	w.startedAt = time.Time{}
	if w.cancel != nil {
		w.cancel()
	}
	if w.conn != nil {
		// Unblocks any handler read/write on the connection. Whatever
		// partial response was already written is all the client gets.
		w.conn.Close()
		w.conn = nil
	}
	atomic.AddInt64(&w.totalFailed, 1)
	return true
}

// markDead finishes the TimedOut -> Dead transition
func (w *Worker) markDead() {
	atomic.StoreInt32(&w.state, int32(StateDead))
}

// retire marks a worker Dead on clean loop exit
func (w *Worker) retire(cause error) {
	w.mu.Lock()
	w.cause = cause
	atomic.StoreInt32(&w.state, int32(StateDead))
	w.mu.Unlock()
}

// requestStart returns the start time of the in-flight request, if any
func (w *Worker) requestStart() (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if State(atomic.LoadInt32(&w.state)) != StateBusy {
		return time.Time{}, false
	}
	return w.startedAt, true
}

// Stats returns a snapshot of the worker's counters and state
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	startedAt := w.startedAt
	w.mu.Unlock()

	return Stats{
		ID:             w.id,
		State:          w.State(),
		StartedAt:      startedAt,
		TotalProcessed: atomic.LoadInt64(&w.totalProcessed),
		TotalFailed:    atomic.LoadInt64(&w.totalFailed),
	}
}

// Stats describes one worker
type Stats struct {
	ID             int
	State          State
	StartedAt      time.Time // start of the in-flight request, zero unless Busy
	TotalProcessed int64
	TotalFailed    int64
}
