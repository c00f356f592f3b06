package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/benchlink/benchlink-go/pkg/scpi"
)

// SocketConfig configures a SocketChannel.
type SocketConfig struct {
	// Timeout is the initial communication timeout. Default: DefaultTimeout.
	Timeout time.Duration

	// Termination is appended to every command. Default: "\n".
	Termination string

	// Logger receives debug output. Nil disables logging.
	Logger *slog.Logger
}

// DefaultSocketConfig returns the default socket configuration.
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		Timeout:     DefaultTimeout,
		Termination: scpi.DefaultTermination,
	}
}

// SocketChannel speaks raw SCPI over a stream connection.
type SocketChannel struct {
	mu      sync.Mutex
	conn    net.Conn
	r       *bufio.Reader
	term    string
	timeout time.Duration
	closed  bool
	logger  *slog.Logger
}

// DialSocket connects to address and returns a SocketChannel.
func DialSocket(ctx context.Context, address string, config SocketConfig) (*SocketChannel, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return NewSocketChannel(conn, config), nil
}

// NewSocketChannel wraps an established connection.
func NewSocketChannel(conn net.Conn, config SocketConfig) *SocketChannel {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Termination == "" {
		config.Termination = scpi.DefaultTermination
	}
	return &SocketChannel{
		conn:    conn,
		r:       bufio.NewReader(conn),
		term:    config.Termination,
		timeout: config.Timeout,
		logger:  config.Logger,
	}
}

// Write implements Channel.
func (c *SocketChannel) Write(ctx context.Context, command string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	stop := c.watch(ctx)
	defer stop()

	if err := c.conn.SetWriteDeadline(deadline(ctx, c.timeout)); err != nil {
		return err
	}
	if _, err := io.WriteString(c.conn, command+c.term); err != nil {
		return c.wrap(ctx, "write", err)
	}
	c.debug("write", "command", command)
	return nil
}

// ReadLine implements Channel.
func (c *SocketChannel) ReadLine(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrClosed
	}

	stop := c.watch(ctx)
	defer stop()

	if err := c.conn.SetReadDeadline(deadline(ctx, c.timeout)); err != nil {
		return "", err
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", c.wrap(ctx, "read", err)
	}
	line = strings.TrimRight(line, "\r\n")
	c.debug("read", "response", line)
	return line, nil
}

// ReadStatusByte implements Channel with a *STB? query, since a raw socket
// has no serial poll.
func (c *SocketChannel) ReadStatusByte(ctx context.Context) (byte, error) {
	resp, err := Query(ctx, c, scpi.QueryStatusByte)
	if err != nil {
		return 0, err
	}
	v, err := scpi.ParseInt(resp)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}

// Clear discards unread input. A raw socket has no device clear message.
func (c *SocketChannel) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if n := c.r.Buffered(); n > 0 {
		_, _ = c.r.Discard(n)
	}

	// Drain anything still in flight.
	buf := make([]byte, 512)
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond)); err != nil {
			return err
		}
		if _, err := c.conn.Read(buf); err != nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	c.r.Reset(c.conn)
	return c.conn.SetReadDeadline(time.Time{})
}

// SetTimeout implements Channel.
func (c *SocketChannel) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
}

// Timeout implements Channel.
func (c *SocketChannel) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

// Close implements Channel.
func (c *SocketChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// watch unblocks pending I/O when ctx is canceled.
func (c *SocketChannel) watch(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Unix(1, 0))
	})
}

func (c *SocketChannel) wrap(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%s: %w: %w", op, ErrClosed, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (c *SocketChannel) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

var _ Channel = (*SocketChannel)(nil)
