package beanstalkd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/beanstalkd/go-beanstalk"
)

const (
	// DefaultPriority matches the priority most beanstalkd clients use for put
	DefaultPriority uint32 = 65536
	// DefaultTTR is the time-to-run given to jobs we put
	DefaultTTR = 120 * time.Second
)

var (
	// ErrConnection is returned when the server cannot be reached or the
	// connection breaks mid-command
	ErrConnection = errors.New("beanstalkd connection failed")

	// ErrJobGone is returned when a job no longer exists on the server
	ErrJobGone = errors.New("job has gone away")
)

// Config holds beanstalkd connection configuration
type Config struct {
	Host            string
	Port            int
	DialTimeout     time.Duration
	RetryAttempts   int
	RetryInterval   time.Duration
	Priority        uint32
	TTR             time.Duration
	ReleasePriority uint32
}

// Job is a job handed out by the server
type Job struct {
	ID   uint64
	Body []byte
}

// Client is a single beanstalkd connection. It is not safe for concurrent use.
type Client struct {
	config  *Config
	conn    *beanstalk.Conn
	tube    *beanstalk.Tube
	tubeSet *beanstalk.TubeSet
	logger  *slog.Logger
	closed  bool
}

// NewClient dials the server and returns a connected client
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config: config,
		logger: logger,
	}

	if err := client.connect(); err != nil {
		return nil, err
	}

	return client, nil
}

// Addr returns host:port of the server
func (c *Client) Addr() string {
	return net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
}

// connect establishes the connection, retrying when configured to
func (c *Client) connect() error {
	attempts := c.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	dialTimeout := c.config.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Debug("Connecting to beanstalkd",
			slog.String("addr", c.Addr()),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		c.conn, err = beanstalk.DialTimeout("tcp", c.Addr(), dialTimeout)
		if err == nil {
			break
		}

		c.logger.Warn("Failed to connect to beanstalkd",
			slog.String("addr", c.Addr()),
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < attempts {
			time.Sleep(c.config.RetryInterval)
		}
	}

	if err != nil {
		return fmt.Errorf("%w: %s after %d attempts: %v", ErrConnection, c.Addr(), attempts, err)
	}

	c.logger.Debug("Connected to beanstalkd", slog.String("addr", c.Addr()))
	return nil
}

// Use selects the tube that Put writes to
func (c *Client) Use(tube string) error {
	if tube == "" {
		return fmt.Errorf("tube name is required")
	}
	c.tube = beanstalk.NewTube(c.conn, tube)
	return nil
}

// Watch adds tube to the set Reserve reads from. The default tube is not
// watched once any tube has been added.
func (c *Client) Watch(tube string) error {
	if tube == "" {
		return fmt.Errorf("tube name is required")
	}
	if c.tubeSet == nil {
		c.tubeSet = beanstalk.NewTubeSet(c.conn, tube)
		return nil
	}
	c.tubeSet.Name[tube] = true
	return nil
}

// Reserve waits up to timeout for a job on the watched tubes. A timeout is
// reported as a nil job and a nil error.
func (c *Client) Reserve(timeout time.Duration) (*Job, error) {
	if c.tubeSet == nil {
		return nil, fmt.Errorf("no tube watched")
	}

	id, body, err := c.tubeSet.Reserve(timeout)
	if err != nil {
		if isResponse(err, beanstalk.ErrTimeout) {
			return nil, nil
		}
		// a pending deadline means the TTR of a job we hold is about to expire,
		// the caller sees it as an empty reserve
		if isResponse(err, beanstalk.ErrDeadline) {
			c.logger.Warn("Reservation deadline soon", slog.String("addr", c.Addr()))
			return nil, nil
		}
		return nil, c.wrap("reserve", err)
	}

	return &Job{ID: id, Body: body}, nil
}

// Peek returns a job by id without changing its state
func (c *Client) Peek(id uint64) (*Job, error) {
	body, err := c.conn.Peek(id)
	if err != nil {
		return nil, c.wrap("peek", err)
	}
	return &Job{ID: id, Body: body}, nil
}

// Delete removes a job permanently
func (c *Client) Delete(id uint64) error {
	if err := c.conn.Delete(id); err != nil {
		return c.wrap("delete", err)
	}
	return nil
}

// Release puts a reserved job back, ready again after delay
func (c *Client) Release(id uint64, delay time.Duration) error {
	if err := c.conn.Release(id, c.releasePriority(), delay); err != nil {
		return c.wrap("release", err)
	}
	return nil
}

// Put enqueues body onto the tube selected with Use
func (c *Client) Put(body []byte) (uint64, error) {
	if c.tube == nil {
		return 0, fmt.Errorf("no tube selected")
	}

	priority := c.config.Priority
	if priority == 0 {
		priority = DefaultPriority
	}
	ttr := c.config.TTR
	if ttr <= 0 {
		ttr = DefaultTTR
	}

	id, err := c.tube.Put(body, priority, 0, ttr)
	if err != nil {
		return 0, c.wrap("put", err)
	}

	c.logger.Debug("Job put to beanstalkd",
		slog.Uint64("job_id", id),
		slog.String("tube", c.tube.Name),
		slog.Int("body_size", len(body)),
	)

	return id, nil
}

// Close closes the connection. Calling it again is a no-op.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	if c.conn == nil {
		return nil
	}

	if err := c.conn.Close(); err != nil {
		c.logger.Error("Failed to close beanstalkd connection",
			slog.String("addr", c.Addr()),
			slog.Any("error", err),
		)
		return err
	}

	c.logger.Debug("Beanstalkd connection closed", slog.String("addr", c.Addr()))
	return nil
}

func (c *Client) releasePriority() uint32 {
	if c.config.ReleasePriority != 0 {
		return c.config.ReleasePriority
	}
	return DefaultPriority
}

// wrap maps protocol responses onto our sentinel errors
func (c *Client) wrap(op string, err error) error {
	if isResponse(err, beanstalk.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrJobGone)
	}

	var connErr beanstalk.ConnError
	if errors.As(err, &connErr) {
		var netErr net.Error
		if errors.As(connErr.Err, &netErr) || errors.Is(connErr.Err, net.ErrClosed) ||
			errors.Is(connErr.Err, io.EOF) || errors.Is(connErr.Err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%s: %w: %v", op, ErrConnection, err)
		}
	}

	return fmt.Errorf("failed to %s: %w", op, err)
}

// isResponse reports whether err carries the given protocol response
func isResponse(err, target error) bool {
	if errors.Is(err, target) {
		return true
	}
	var connErr beanstalk.ConnError
	if errors.As(err, &connErr) {
		return connErr.Err == target
	}
	return false
}
