// Package server implements the pre-fork style HTTP front-end: one bound
// listening socket, a fixed pool of workers, per-request timeout
// enforcement and graceful shutdown.
package server

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/routecalc/prefork/pkg/types"
)

const (
	// DefaultBindAddress is the default listening address
	DefaultBindAddress = "0.0.0.0:8000"

	// DefaultWorkerCount is the default pool size
	DefaultWorkerCount = 4

	// DefaultRequestTimeout is the default per-request time limit
	DefaultRequestTimeout = 120 * time.Second

	// DefaultMonitorInterval is the default timeout scan period
	DefaultMonitorInterval = 500 * time.Millisecond

	defaultMaxHeaderBytes = 8 << 10
	defaultMaxBodyBytes   = 10 << 20
)

// Config defines the front-end configuration. It is loaded once at process
// start and never mutated afterwards.
type Config struct {
	// BindAddress is the host:port to listen on
	BindAddress string

	// WorkerCount is the fixed pool size
	WorkerCount int

	// RequestTimeout is the per-request time limit
	RequestTimeout time.Duration

	// MonitorInterval is the timeout scan period
	MonitorInterval time.Duration

	// ShutdownGracePeriod bounds graceful shutdown. Zero means
	// RequestTimeout.
	ShutdownGracePeriod time.Duration

	// MaxHeaderBytes limits the request line plus headers
	MaxHeaderBytes int

	// MaxBodyBytes limits the request body
	MaxBodyBytes int64

	// Warmup is optional per-worker initialization
	Warmup func(workerID int) error

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock

	// Logger is the structured logger for server operations (optional)
	Logger *slog.Logger
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddress:     DefaultBindAddress,
		WorkerCount:     DefaultWorkerCount,
		RequestTimeout:  DefaultRequestTimeout,
		MonitorInterval: DefaultMonitorInterval,
		MaxHeaderBytes:  defaultMaxHeaderBytes,
		MaxBodyBytes:    defaultMaxBodyBytes,
		Clock:           types.NewRealClock(),
	}
}

// ConfigFromEnv builds a Config from the environment, falling back to
// defaults. WEB_CONCURRENCY is honored for the worker count, matching the
// convention of pre-fork servers.
//
//	BIND_ADDRESS           host:port           (default 0.0.0.0:8000)
//	WEB_CONCURRENCY        worker count        (default 4)
//	REQUEST_TIMEOUT        seconds             (default 120)
//	SHUTDOWN_GRACE_PERIOD  seconds             (default REQUEST_TIMEOUT)
func ConfigFromEnv() (*Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("BIND_ADDRESS"); v != "" {
		cfg.BindAddress = v
	}
	if v := os.Getenv("WEB_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, types.NewConfigError("WEB_CONCURRENCY", v, err)
		}
		cfg.WorkerCount = n
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, types.NewConfigError("REQUEST_TIMEOUT", v, err)
		}
		cfg.RequestTimeout = time.Duration(n) * time.Second
	}
	if v := os.Getenv("SHUTDOWN_GRACE_PERIOD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, types.NewConfigError("SHUTDOWN_GRACE_PERIOD", v, err)
		}
		cfg.ShutdownGracePeriod = time.Duration(n) * time.Second
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration invariants
func (c *Config) Validate() error {
	_, port, err := net.SplitHostPort(c.BindAddress)
	if err != nil {
		return types.NewConfigError("bindAddress", c.BindAddress, err)
	}
	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		return types.NewConfigError("bindAddress", c.BindAddress,
			fmt.Errorf("invalid port %q", port))
	}

	if c.WorkerCount < 1 {
		return types.NewConfigError("workerCount", c.WorkerCount,
			fmt.Errorf("must be at least 1"))
	}
	if c.RequestTimeout <= 0 {
		return types.NewConfigError("requestTimeoutSeconds", c.RequestTimeout,
			fmt.Errorf("must be positive"))
	}
	return nil
}
