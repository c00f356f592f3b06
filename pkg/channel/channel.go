package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benchlink/benchlink-go/pkg/resource"
)

// Channel errors.
var (
	ErrClosed      = errors.New("channel closed")
	ErrTimeout     = errors.New("channel timeout")
	ErrUnsupported = errors.New("operation not supported by channel")
)

// DefaultTimeout is the communication timeout of a new channel.
const DefaultTimeout = 2 * time.Second

// Channel is a duplex, line-oriented connection to one instrument.
//
// A Channel is not safe for interleaved use: callers serialize a Write and
// the ReadLine that collects its response.
type Channel interface {
	// Write sends one command line. The terminator is added by the channel.
	Write(ctx context.Context, command string) error

	// ReadLine reads one response line without its terminator.
	ReadLine(ctx context.Context) (string, error)

	// ReadStatusByte performs a serial poll.
	ReadStatusByte(ctx context.Context) (byte, error)

	// Clear performs a selective device clear: pending I/O is aborted and
	// unread output is discarded. Register contents are not affected.
	Clear(ctx context.Context) error

	// SetTimeout sets the communication timeout for subsequent operations.
	SetTimeout(d time.Duration)

	// Timeout returns the current communication timeout.
	Timeout() time.Duration

	// Close releases the connection. Closing twice is not an error.
	Close() error
}

// ServiceRequester is implemented by channels that can deliver hardware
// service requests.
type ServiceRequester interface {
	// SetServiceRequestHandler installs the handler called when the
	// instrument asserts SRQ. A nil handler detaches. The handler runs on the
	// channel's own goroutine and must not block.
	SetServiceRequestHandler(fn func(statusByte byte))

	// EnableServiceRequest turns on SRQ delivery.
	EnableServiceRequest(ctx context.Context) error

	// DisableServiceRequest turns off SRQ delivery.
	DisableServiceRequest(ctx context.Context) error
}

// Opener creates channels for resource names.
type Opener interface {
	Open(ctx context.Context, name resource.Name) (Channel, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, name resource.Name) (Channel, error)

// Open calls f(ctx, name).
func (f OpenerFunc) Open(ctx context.Context, name resource.Name) (Channel, error) {
	return f(ctx, name)
}

// Emulated is implemented by channels that stand in for real hardware.
type Emulated interface {
	Emulated() bool
}

// IsEmulated reports whether ch is an emulated stand-in.
func IsEmulated(ch Channel) bool {
	e, ok := ch.(Emulated)
	return ok && e.Emulated()
}

// Query writes a query and reads its response line.
func Query(ctx context.Context, ch Channel, query string) (string, error) {
	if err := ch.Write(ctx, query); err != nil {
		return "", err
	}
	resp, err := ch.ReadLine(ctx)
	if err != nil {
		return "", fmt.Errorf("read response to %q: %w", query, err)
	}
	return resp, nil
}

// deadline returns the earlier of the context deadline and now+timeout.
func deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}
