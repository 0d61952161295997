package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/routecalc/prefork/pkg/retry"
	"github.com/routecalc/prefork/pkg/types"
)

// WarmupFunc initializes one worker before it starts accepting
// connections. A failing warmup is retried once with a fresh worker;
// a second failure is fatal.
type WarmupFunc func(ctx context.Context, workerID int) error

// PoolConfig defines configuration for the worker pool
type PoolConfig struct {
	// Size is the number of workers; the pool holds exactly this many at
	// steady state
	Size int

	// RequestTimeout is the per-request time limit enforced by the monitor
	RequestTimeout time.Duration

	// MonitorInterval is the scan period of the timeout monitor
	MonitorInterval time.Duration

	// StopGracePeriod bounds how long Stop waits for Busy workers.
	// Zero means RequestTimeout.
	StopGracePeriod time.Duration

	// StartRetryDelay is the pause before retrying a failed worker start
	StartRetryDelay time.Duration

	// Handler processes accepted connections (required)
	Handler ConnHandler

	// Warmup is optional per-worker initialization
	Warmup WarmupFunc

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock

	// Logger for worker lifecycle events (optional)
	Logger *slog.Logger
}

// DefaultPoolConfig returns default configuration
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Size:            4,
		RequestTimeout:  120 * time.Second,
		MonitorInterval: 500 * time.Millisecond,
		StartRetryDelay: 100 * time.Millisecond,
		Clock:           types.NewRealClock(),
	}
}

// Pool maintains a fixed-size set of workers sharing one dispatch channel.
// Dead workers are replaced so the pool size stays constant. The worker
// table is the only shared mutable structure; it is guarded by mu so the
// acceptor and the monitor never block each other outside of it.
type Pool struct {
	config   *PoolConfig
	connChan chan net.Conn

	// state management
	state  int32 // 0: stopped, 1: running, 2: closed
	ctx    context.Context
	cancel context.CancelFunc

	monitorQuit chan struct{}
	monitorDone chan struct{}

	fatal chan error

	// worker table
	mu           sync.RWMutex
	workers      map[int]*Worker
	nextWorkerID int32
	replacements int64

	stopOnce sync.Once
}

// NewPool creates a new worker pool
func NewPool(config *PoolConfig) (*Pool, error) {
	if config == nil {
		config = DefaultPoolConfig()
	}

	// parameter validation
	if config.Size <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", config.Size)
	}
	if config.RequestTimeout <= 0 {
		return nil, fmt.Errorf("request timeout must be positive, got %v", config.RequestTimeout)
	}
	if config.Handler == nil {
		return nil, fmt.Errorf("connection handler is required")
	}
	if config.MonitorInterval <= 0 {
		config.MonitorInterval = 500 * time.Millisecond
	}
	if config.StopGracePeriod <= 0 {
		config.StopGracePeriod = config.RequestTimeout
	}
	if config.Clock == nil {
		config.Clock = types.NewRealClock()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Pool{
		config:      config,
		connChan:    make(chan net.Conn), // unbuffered: pending connections stay in the OS accept backlog
		workers:     make(map[int]*Worker, config.Size),
		monitorQuit: make(chan struct{}),
		monitorDone: make(chan struct{}),
		fatal:       make(chan error, 1),
	}, nil
}

// Start spawns the workers and the timeout monitor. It returns once every
// worker has reached Idle; a worker that fails to start is retried once and
// a second failure aborts startup with a WorkerStartError.
func (p *Pool) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&p.state, 0, 1) {
		if atomic.LoadInt32(&p.state) == 1 {
			return fmt.Errorf("worker pool is already running")
		}
		return types.ErrPoolClosed
	}

	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.config.Size; i++ {
		w, err := p.spawnWorker()
		if err != nil {
			p.cancel()
			atomic.StoreInt32(&p.state, 2)
			return err
		}
		select {
		case <-w.ready:
		case <-p.ctx.Done():
			atomic.StoreInt32(&p.state, 2)
			return p.ctx.Err()
		}
	}

	go p.monitor()
	return nil
}

// spawnWorker creates, warms up and starts one worker with a fresh ID.
// The one-retry start contract is implemented with the retry executor.
func (p *Pool) spawnWorker() (*Worker, error) {
	policy := retry.NewFixedDelayPolicy(2, p.config.StartRetryDelay)
	executor := retry.NewExecutor(policy, retry.WithClock(p.config.Clock))

	var lastID int
	w, err := retry.Execute(executor, p.ctx, func(ctx context.Context) (*Worker, error) {
		id := int(atomic.AddInt32(&p.nextWorkerID, 1)) - 1
		lastID = id
		w := newWorker(id, p.connChan, p.config.Handler, p.config.Clock, p.config.Logger)

		if p.config.Warmup != nil {
			if err := p.config.Warmup(ctx, id); err != nil {
				w.retire(err)
				p.config.Logger.Error("worker failed to start", "worker", id, "error", err)
				return nil, err
			}
		}
		return w, nil
	})
	if err != nil {
		return nil, types.NewWorkerStartError(lastID, policy.MaxAttempts(), err)
	}

	w.onCrash = p.handleCrash

	p.mu.Lock()
	p.workers[w.id] = w
	p.mu.Unlock()

	go w.run(p.ctx)
	return w, nil
}

// handleCrash replaces a worker whose handler errored or panicked
func (p *Pool) handleCrash(w *Worker, err error) {
	p.config.Logger.Error("worker died", "worker", w.id, "cause", "crash", "error", err)
	p.replace(w)
}

// replace removes a dead worker from the table and restores the pool size.
// Replacement failure after the retry is fatal for the whole front-end.
func (p *Pool) replace(old *Worker) {
	p.mu.Lock()
	delete(p.workers, old.id)
	p.mu.Unlock()

	if atomic.LoadInt32(&p.state) != 1 {
		return
	}

	atomic.AddInt64(&p.replacements, 1)
	w, err := p.spawnWorker()
	if err != nil {
		if p.ctx.Err() != nil {
			return // pool is stopping, not a startup failure
		}
		select {
		case p.fatal <- err:
		default:
		}
		return
	}
	p.config.Logger.Info("worker replaced", "old", old.id, "new", w.id)
}

// Dispatch hands an accepted connection to the next available worker. It
// blocks until a worker receives the connection; connections not yet
// accepted wait in the OS backlog, there is no application-level queue.
func (p *Pool) Dispatch(conn net.Conn) error {
	if atomic.LoadInt32(&p.state) != 1 {
		if atomic.LoadInt32(&p.state) == 0 {
			return types.ErrPoolNotStarted
		}
		return types.ErrPoolClosed
	}

	select {
	case p.connChan <- conn:
		return nil
	case <-p.ctx.Done():
		return types.ErrPoolClosed
	}
}

// Fatal reports unrecoverable pool failures after startup, such as a
// replacement worker failing to start twice.
func (p *Pool) Fatal() <-chan error {
	return p.fatal
}

// Stop drains the pool: in-flight workers get up to StopGracePeriod to
// finish (the monitor keeps enforcing the request timeout meanwhile), then
// remaining workers are force-killed. Returns ErrForcedShutdown if any
// worker had to be killed past the grace period.
func (p *Pool) Stop() error {
	if !atomic.CompareAndSwapInt32(&p.state, 1, 2) {
		if atomic.LoadInt32(&p.state) == 0 {
			return types.ErrPoolNotStarted
		}
		return nil
	}

	var stopErr error
	p.stopOnce.Do(func() {
		// cooperative cancellation: idle workers exit, in-flight handler
		// contexts are cancelled
		p.cancel()

		deadline := p.config.Clock.Now().Add(p.config.StopGracePeriod)
		ticker := p.config.Clock.NewTicker(p.config.MonitorInterval)
		defer ticker.Stop()

		for p.busyCount() > 0 {
			if !p.config.Clock.Now().Before(deadline) {
				forced := 0
				for _, w := range p.snapshot() {
					if w.abort(types.ErrForcedShutdown) {
						w.markDead()
						forced++
					}
				}
				if forced > 0 {
					p.config.Logger.Warn("grace period exceeded, workers force-killed", "count", forced)
					stopErr = types.ErrForcedShutdown
				}
				break
			}
			<-ticker.C()
		}

		close(p.monitorQuit)
		<-p.monitorDone
	})

	return stopErr
}

// busyCount returns how many workers are currently Busy
func (p *Pool) busyCount() int {
	n := 0
	for _, w := range p.snapshot() {
		if w.State() == StateBusy {
			n++
		}
	}
	return n
}

// snapshot copies the worker table for lock-free iteration
func (p *Pool) snapshot() []*Worker {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ws := make([]*Worker, 0, len(p.workers))
	for _, w := range p.workers {
		ws = append(ws, w)
	}
	return ws
}

// IsRunning checks if the pool is running
func (p *Pool) IsRunning() bool {
	return atomic.LoadInt32(&p.state) == 1
}

// Size returns the configured pool size
func (p *Pool) Size() int {
	return p.config.Size
}

// Stats returns a snapshot of the pool
func (p *Pool) Stats() PoolStats {
	stats := PoolStats{
		Size:         p.config.Size,
		Replacements: atomic.LoadInt64(&p.replacements),
	}
	for _, w := range p.snapshot() {
		stats.Workers = append(stats.Workers, w.Stats())
		switch w.State() {
		case StateIdle:
			stats.Idle++
		case StateBusy:
			stats.Busy++
		}
	}
	return stats
}

// PoolStats describes the pool at one instant
type PoolStats struct {
	Size         int
	Idle         int
	Busy         int
	Replacements int64
	Workers      []Stats
}
