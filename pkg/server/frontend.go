package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/routecalc/prefork/pkg/types"
	"github.com/routecalc/prefork/pkg/worker"
)

// Frontend is the worker-pool HTTP front-end. It owns the listening
// socket, accepts connections and hands each one to exactly one worker;
// the application handler's response bytes are written back verbatim.
type Frontend struct {
	config  *Config
	handler types.Handler
	log     *slog.Logger

	pool     *worker.Pool
	listener net.Listener

	started      int32
	acceptDone   chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a front-end for the given handler. Configuration is
// validated here; a ConfigError means the process must not start.
func New(config *Config, handler types.Handler) (*Frontend, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if handler == nil {
		return nil, fmt.Errorf("application handler is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Clock == nil {
		config.Clock = types.NewRealClock()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxHeaderBytes <= 0 {
		config.MaxHeaderBytes = defaultMaxHeaderBytes
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaultMaxBodyBytes
	}

	return &Frontend{
		config:     config,
		handler:    handler,
		log:        config.Logger,
		acceptDone: make(chan struct{}),
	}, nil
}

// Start binds the listening socket, spawns the worker pool and begins
// accepting. It returns once all workers are Idle (readiness); bind and
// worker-start failures are fatal.
func (f *Frontend) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&f.started, 0, 1) {
		return fmt.Errorf("front-end is already started")
	}

	ln, err := net.Listen("tcp", f.config.BindAddress)
	if err != nil {
		return types.NewBindError(f.config.BindAddress, err)
	}

	var warmup worker.WarmupFunc
	if f.config.Warmup != nil {
		warmup = func(_ context.Context, workerID int) error {
			return f.config.Warmup(workerID)
		}
	}

	pool, err := worker.NewPool(&worker.PoolConfig{
		Size:            f.config.WorkerCount,
		RequestTimeout:  f.config.RequestTimeout,
		MonitorInterval: f.config.MonitorInterval,
		StopGracePeriod: f.config.ShutdownGracePeriod,
		Handler:         f.serveConn,
		Warmup:          warmup,
		Clock:           f.config.Clock,
		Logger:          f.log,
	})
	if err != nil {
		ln.Close()
		return err
	}

	if err := pool.Start(ctx); err != nil {
		ln.Close()
		return err
	}

	f.listener = ln
	f.pool = pool
	go f.acceptLoop()

	f.log.Info("front-end ready",
		"addr", ln.Addr().String(),
		"workers", f.config.WorkerCount,
		"request_timeout", f.config.RequestTimeout)
	return nil
}

// Addr returns the bound listener address, nil before Start
func (f *Frontend) Addr() net.Addr {
	if f.listener == nil {
		return nil
	}
	return f.listener.Addr()
}

// Pool exposes the worker pool for inspection
func (f *Frontend) Pool() *worker.Pool {
	return f.pool
}

// acceptLoop accepts connections and dispatches each to an available
// worker. Dispatch blocks while all workers are Busy; pending connections
// stay in the OS accept backlog.
func (f *Frontend) acceptLoop() {
	defer close(f.acceptDone)

	for {
		conn, err := f.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			f.log.Warn("accept error", "error", err)
			continue
		}

		if err := f.pool.Dispatch(conn); err != nil {
			conn.Close()
			return
		}
	}
}

// serveConn is the per-connection unit of work executed by a worker: read
// the request, invoke the application, write its response byte for byte.
// A handler error propagates as a worker crash.
func (f *Frontend) serveConn(ctx context.Context, conn net.Conn) error {
	req, err := readRequest(conn, f.config.MaxHeaderBytes, f.config.MaxBodyBytes)
	if err != nil {
		// Malformed request: drop the connection, the worker stays healthy.
		f.log.Debug("dropping unreadable request", "remote", conn.RemoteAddr().String(), "error", err)
		return nil
	}

	resp, err := f.handler.Handle(ctx, req)
	if err != nil {
		return err
	}

	if _, err := conn.Write(resp); err != nil {
		// Client went away mid-response; nothing to recover.
		f.log.Debug("response write failed", "remote", conn.RemoteAddr().String(), "error", err)
	}
	return nil
}

// Run starts the front-end and blocks until the context is cancelled or
// the pool reports a fatal error, then shuts down. The returned error maps
// to the process exit status via ExitCode.
func (f *Frontend) Run(ctx context.Context) error {
	if err := f.Start(ctx); err != nil {
		return err
	}

	var fatal error
	select {
	case <-ctx.Done():
		f.log.Info("termination signal received")
	case fatal = <-f.pool.Fatal():
		f.log.Error("fatal pool failure", "error", fatal)
	}

	stopErr := f.Shutdown()
	if fatal != nil {
		return fatal
	}
	return stopErr
}

// Shutdown stops accepting, drains the pool within the grace period and
// releases the listening socket. Safe to call more than once.
func (f *Frontend) Shutdown() error {
	f.shutdownOnce.Do(func() {
		if f.listener != nil {
			f.listener.Close()
		}
		if f.pool != nil {
			f.shutdownErr = f.pool.Stop()
			<-f.acceptDone
		}
		f.log.Info("front-end stopped")
	})
	return f.shutdownErr
}

// Exit statuses of the front-end process.
const (
	ExitOK          = 0
	ExitConfig      = 1
	ExitBind        = 2
	ExitWorkerStart = 3
	ExitForced      = 4
)

// ExitCode maps a front-end error to the process exit status
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var configErr *types.ConfigError
	if errors.As(err, &configErr) {
		return ExitConfig
	}
	var bindErr *types.BindError
	if errors.As(err, &bindErr) {
		return ExitBind
	}
	var startErr *types.WorkerStartError
	if errors.As(err, &startErr) {
		return ExitWorkerStart
	}
	if errors.Is(err, types.ErrForcedShutdown) {
		return ExitForced
	}
	return ExitConfig
}
