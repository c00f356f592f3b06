package resource

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Probe errors.
var (
	// ErrNotFound is returned when the named resource does not exist or
	// cannot be reached.
	ErrNotFound = errors.New("resource not found")

	// ErrNotApplicable is returned by a probe that cannot check the given
	// interface type. AnyProbe skips such probes.
	ErrNotApplicable = errors.New("probe not applicable to resource")
)

// DefaultProbeTimeout bounds a single probe.
const DefaultProbeTimeout = 2 * time.Second

// Probe checks whether a resource exists. A nil error means it does.
type Probe interface {
	Probe(ctx context.Context, name Name) error
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func(ctx context.Context, name Name) error

// Probe calls f(ctx, name).
func (f ProbeFunc) Probe(ctx context.Context, name Name) error {
	return f(ctx, name)
}

// AnyProbe tries each probe in order and succeeds on the first success.
type AnyProbe []Probe

// Probe implements Probe.
func (a AnyProbe) Probe(ctx context.Context, name Name) error {
	var errs []error
	for _, p := range a {
		err := p.Probe(ctx, name)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotApplicable) {
			continue
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return fmt.Errorf("%w: %s: no probe for %s resources", ErrNotFound, name, name.Interface)
	}
	return fmt.Errorf("%w: %s: %w", ErrNotFound, name, errors.Join(errs...))
}

// DialProbe checks that a TCPIP resource accepts connections.
type DialProbe struct {
	// Timeout bounds the dial. Default: DefaultProbeTimeout.
	Timeout time.Duration

	// Dialer is used for the connection attempt. Nil uses a net.Dialer.
	Dialer interface {
		DialContext(ctx context.Context, network, address string) (net.Conn, error)
	}
}

// Probe implements Probe.
func (p *DialProbe) Probe(ctx context.Context, name Name) error {
	if !name.IsLAN() {
		return ErrNotApplicable
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer interface {
		DialContext(ctx context.Context, network, address string) (net.Conn, error)
	} = &net.Dialer{}
	if p.Dialer != nil {
		dialer = p.Dialer
	}

	conn, err := dialer.DialContext(ctx, "tcp", name.Address())
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", ErrNotFound, name.Address(), err)
	}
	return conn.Close()
}

// Default returns the probe used when none is configured: LAN resources are
// dialed, then looked up over mDNS; USB resources are matched by descriptor.
func Default() Probe {
	return AnyProbe{
		&DialProbe{},
		NewMDNSProbe(DefaultMDNSConfig()),
		&USBProbe{},
	}
}
