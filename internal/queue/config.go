package queue

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

const (
	DefaultChunkSize = 30
	DefaultTimeout   = 1 * time.Second
	DefaultDelay     = 3600 * time.Second
)

// Config describes one tube on one beanstalkd server. It does not change for
// the lifetime of a task run.
type Config struct {
	Host string
	Port int
	Tube string

	// ChunkSize is the soft cap on jobs handled per reservation batch
	ChunkSize int
	// Timeout bounds every single reserve call
	Timeout time.Duration
	// Delay is applied when releasing undecided jobs
	Delay time.Duration
	// DeleteOnReserve deletes jobs as soon as they are reserved instead of
	// waiting for the pipeline verdict
	DeleteOnReserve bool

	// Priority and TTR are used for jobs we put. Zero means client default.
	Priority uint32
	TTR      time.Duration
}

// WithDefaults fills zero values with the defaults
func (c Config) WithDefaults() Config {
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Delay == 0 {
		c.Delay = DefaultDelay
	}
	return c
}

// Validate checks the connection and batch settings. Every error wraps
// ErrInvalidConfig.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.Port)
	}
	if c.Tube == "" {
		return fmt.Errorf("%w: tube is required", ErrInvalidConfig)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be at least 1", ErrInvalidConfig)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}
	if c.Delay < 0 {
		return fmt.Errorf("%w: delay must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Addr returns the host:port to dial
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
