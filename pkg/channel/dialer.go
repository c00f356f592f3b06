package channel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/benchlink/benchlink-go/pkg/resource"
)

// Dialer opens the channel implementation matching a resource's interface.
type Dialer struct {
	Socket SocketConfig
	USB    USBTMCConfig

	// Emulator, if set, serves every resource instead of real hardware.
	Emulator *Emulator

	// Logger is passed to channels that have none configured.
	Logger *slog.Logger
}

// NewDialer returns a Dialer with default channel configurations.
func NewDialer(logger *slog.Logger) *Dialer {
	return &Dialer{
		Socket: DefaultSocketConfig(),
		USB:    DefaultUSBTMCConfig(),
		Logger: logger,
	}
}

// Open implements Opener.
func (d *Dialer) Open(ctx context.Context, name resource.Name) (Channel, error) {
	if d.Emulator != nil {
		return d.Emulator.Open(ctx, name)
	}

	switch name.Interface {
	case resource.InterfaceTCPIP:
		cfg := d.Socket
		if cfg.Logger == nil {
			cfg.Logger = d.Logger
		}
		ch, err := DialSocket(ctx, name.Address(), cfg)
		if err != nil {
			return nil, err
		}
		return ch, nil
	case resource.InterfaceUSB:
		cfg := d.USB
		if cfg.Logger == nil {
			cfg.Logger = d.Logger
		}
		ch, err := OpenUSBTMC(ctx, name, cfg)
		if err != nil {
			return nil, err
		}
		return ch, nil
	default:
		return nil, fmt.Errorf("%w: %s interface", ErrUnsupported, name.Interface)
	}
}

var _ Opener = (*Dialer)(nil)
