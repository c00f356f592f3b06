package channel

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/benchlink/benchlink-go/pkg/resource"
)

// USBTMC message ids and class requests (USBTMC 1.0, USB488 1.0).
const (
	usbtmcDevDepMsgOut        = 1
	usbtmcRequestDevDepMsgIn  = 2
	usbtmcDevDepMsgIn         = 2
	usbtmcInitiateClear       = 5
	usbtmcCheckClearStatus    = 6
	usb488ReadStatusByte      = 128
	usbtmcStatusSuccess       = 0x01
	usbtmcStatusPending       = 0x02
	usbtmcHeaderSize          = 12
	usbtmcRequestTypeIn       = 0xA1 // device-to-host, class, interface
	usbtmcAttrEOM             = 0x01
	usb488NotifySRQ           = 0x81
	usbtmcInterfaceClass      = 0xFE
	usbtmcInterfaceSubClass   = 0x03
	defaultUSBTMCTransferSize = 1024 * 1024
)

// USBTMCConfig configures a USBTMCChannel.
type USBTMCConfig struct {
	// Timeout is the initial communication timeout. Default: DefaultTimeout.
	Timeout time.Duration

	// MaxTransferSize bounds a single bulk-in transfer.
	MaxTransferSize int

	// Logger receives debug output. Nil disables logging.
	Logger *slog.Logger
}

// DefaultUSBTMCConfig returns the default USBTMC configuration.
func DefaultUSBTMCConfig() USBTMCConfig {
	return USBTMCConfig{
		Timeout:         DefaultTimeout,
		MaxTransferSize: defaultUSBTMCTransferSize,
	}
}

// USBTMCChannel talks to a USB488 instrument.
type USBTMCChannel struct {
	mu sync.Mutex

	usb    *gousb.Context
	dev    *gousb.Device
	cfg    *gousb.Config
	intf   *gousb.Interface
	epOut  *gousb.OutEndpoint
	epIn   *gousb.InEndpoint
	epIntr *gousb.InEndpoint
	ifnum  uint16

	tag      byte
	stbTag   byte
	timeout  time.Duration
	maxXfer  int
	closed   bool
	logger   *slog.Logger
	srqOn    bool
	srqFn    func(byte)
	stbWait  chan byte
	intrStop context.CancelFunc
	intrDone chan struct{}
}

// OpenUSBTMC opens the USBTMC interface of the device named by name.
func OpenUSBTMC(ctx context.Context, name resource.Name, config USBTMCConfig) (*USBTMCChannel, error) {
	if name.Interface != resource.InterfaceUSB {
		return nil, fmt.Errorf("%w: %s is not a USB resource", ErrUnsupported, name)
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxTransferSize <= 0 {
		config.MaxTransferSize = defaultUSBTMCTransferSize
	}

	usb := gousb.NewContext()
	devs, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == name.VendorID && uint16(desc.Product) == name.ProductID
	})
	if err != nil && len(devs) == 0 {
		usb.Close()
		return nil, fmt.Errorf("USB error: %w", err)
	}

	var dev *gousb.Device
	for _, d := range devs {
		if dev == nil {
			serial, _ := d.SerialNumber()
			if name.Serial == "" || serial == name.Serial {
				dev = d
				continue
			}
		}
		d.Close()
	}
	if dev == nil {
		usb.Close()
		return nil, fmt.Errorf("%w: %s", resource.ErrNotFound, name)
	}

	// Not fatal on all platforms.
	_ = dev.SetAutoDetach(true)
	dev.ControlTimeout = config.Timeout

	c := &USBTMCChannel{
		usb:     usb,
		dev:     dev,
		timeout: config.Timeout,
		maxXfer: config.MaxTransferSize,
		logger:  config.Logger,
		stbWait: make(chan byte, 1),
	}

	if err := c.claimInterface(name); err != nil {
		c.release()
		return nil, err
	}

	if c.epIntr != nil {
		ictx, cancel := context.WithCancel(context.Background())
		c.intrStop = cancel
		c.intrDone = make(chan struct{})
		go c.interruptLoop(ictx)
	}

	return c, nil
}

// claimInterface finds and claims the USBTMC interface and its endpoints.
func (c *USBTMCChannel) claimInterface(name resource.Name) error {
	cfg, err := c.dev.Config(1)
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}
	c.cfg = cfg

	num := -1
	if name.HasInterface {
		num = name.USBInterface
	} else {
		for _, intf := range cfg.Desc.Interfaces {
			if len(intf.AltSettings) == 0 {
				continue
			}
			alt := intf.AltSettings[0]
			if alt.Class == gousb.Class(usbtmcInterfaceClass) && alt.SubClass == gousb.Class(usbtmcInterfaceSubClass) {
				num = intf.Number
				break
			}
		}
	}
	if num < 0 {
		return fmt.Errorf("%w: no USBTMC interface on %s", ErrUnsupported, name)
	}

	intf, err := cfg.Interface(num, 0)
	if err != nil {
		return fmt.Errorf("failed to claim interface %d: %w", num, err)
	}
	c.intf = intf
	c.ifnum = uint16(num)

	var outNum, inNum, intrNum int
	for _, ep := range intf.Setting.Endpoints {
		switch {
		case ep.TransferType == gousb.TransferTypeBulk && ep.Direction == gousb.EndpointDirectionOut:
			outNum = ep.Number
		case ep.TransferType == gousb.TransferTypeBulk && ep.Direction == gousb.EndpointDirectionIn:
			inNum = ep.Number
		case ep.TransferType == gousb.TransferTypeInterrupt && ep.Direction == gousb.EndpointDirectionIn:
			intrNum = ep.Number
		}
	}
	if outNum == 0 || inNum == 0 {
		return fmt.Errorf("bulk endpoints not found on interface %d", num)
	}

	if c.epOut, err = intf.OutEndpoint(outNum); err != nil {
		return fmt.Errorf("failed to open OUT endpoint: %w", err)
	}
	if c.epIn, err = intf.InEndpoint(inNum); err != nil {
		return fmt.Errorf("failed to open IN endpoint: %w", err)
	}
	if intrNum != 0 {
		if c.epIntr, err = intf.InEndpoint(intrNum); err != nil {
			return fmt.Errorf("failed to open interrupt endpoint: %w", err)
		}
	}
	return nil
}

// Write implements Channel.
func (c *USBTMCChannel) Write(ctx context.Context, command string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	ctx, cancel := context.WithDeadline(ctx, deadline(ctx, c.timeout))
	defer cancel()

	packet := encodeDevDepMsgOut(c.nextTag(), []byte(command+"\n"))
	if _, err := c.epOut.WriteContext(ctx, packet); err != nil {
		return c.wrap(ctx, "bulk out", err)
	}
	c.debug("write", "command", command)
	return nil
}

// ReadLine implements Channel.
func (c *USBTMCChannel) ReadLine(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrClosed
	}

	ctx, cancel := context.WithDeadline(ctx, deadline(ctx, c.timeout))
	defer cancel()

	var sb strings.Builder
	for {
		tag := c.nextTag()
		if _, err := c.epOut.WriteContext(ctx, encodeRequestDevDepMsgIn(tag, c.maxXfer)); err != nil {
			return "", c.wrap(ctx, "request in", err)
		}

		buf := make([]byte, usbtmcHeaderSize+c.maxXfer+3)
		n, err := c.epIn.ReadContext(ctx, buf)
		if err != nil {
			return "", c.wrap(ctx, "bulk in", err)
		}
		payload, eom, err := decodeDevDepMsgIn(buf[:n], tag)
		if err != nil {
			return "", err
		}
		sb.Write(payload)
		if eom {
			break
		}
	}

	line := strings.TrimRight(sb.String(), "\r\n")
	c.debug("read", "response", line)
	return line, nil
}

// ReadStatusByte implements Channel with the USB488 READ_STATUS_BYTE request.
func (c *USBTMCChannel) ReadStatusByte(ctx context.Context) (byte, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}

	// bTag for READ_STATUS_BYTE is 2..127.
	c.stbTag++
	if c.stbTag < 2 || c.stbTag > 127 {
		c.stbTag = 2
	}
	tag := c.stbTag

	resp := make([]byte, 3)
	_, err := c.dev.Control(usbtmcRequestTypeIn, usb488ReadStatusByte, uint16(tag), c.ifnum, resp)
	hasIntr := c.epIntr != nil
	c.mu.Unlock()

	if err != nil {
		return 0, fmt.Errorf("read status byte: %w", err)
	}
	if resp[0] != usbtmcStatusSuccess {
		return 0, fmt.Errorf("read status byte: USBTMC status 0x%02X", resp[0])
	}
	if !hasIntr {
		return resp[2], nil
	}

	// With an interrupt endpoint the status byte arrives there.
	timer := time.NewTimer(c.Timeout())
	defer timer.Stop()
	select {
	case stb := <-c.stbWait:
		return stb, nil
	case <-timer.C:
		return 0, fmt.Errorf("read status byte: %w", ErrTimeout)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Clear implements Channel with INITIATE_CLEAR and CHECK_CLEAR_STATUS.
func (c *USBTMCChannel) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	resp := make([]byte, 1)
	if _, err := c.dev.Control(usbtmcRequestTypeIn, usbtmcInitiateClear, 0, c.ifnum, resp); err != nil {
		return fmt.Errorf("initiate clear: %w", err)
	}
	if resp[0] != usbtmcStatusSuccess {
		return fmt.Errorf("initiate clear: USBTMC status 0x%02X", resp[0])
	}

	limit := time.Now().Add(c.timeout)
	status := make([]byte, 2)
	for {
		if _, err := c.dev.Control(usbtmcRequestTypeIn, usbtmcCheckClearStatus, 0, c.ifnum, status); err != nil {
			return fmt.Errorf("check clear status: %w", err)
		}
		if status[0] != usbtmcStatusPending {
			break
		}
		if time.Now().After(limit) {
			return fmt.Errorf("check clear status: %w", ErrTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return nil
}

// SetTimeout implements Channel.
func (c *USBTMCChannel) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
	c.dev.ControlTimeout = d
}

// Timeout implements Channel.
func (c *USBTMCChannel) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

// SetServiceRequestHandler implements ServiceRequester.
func (c *USBTMCChannel) SetServiceRequestHandler(fn func(statusByte byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.srqFn = fn
}

// EnableServiceRequest implements ServiceRequester.
func (c *USBTMCChannel) EnableServiceRequest(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epIntr == nil {
		return fmt.Errorf("%w: no interrupt endpoint", ErrUnsupported)
	}
	c.srqOn = true
	return nil
}

// DisableServiceRequest implements ServiceRequester.
func (c *USBTMCChannel) DisableServiceRequest(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.srqOn = false
	return nil
}

// Close implements Channel.
func (c *USBTMCChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	stop, done := c.intrStop, c.intrDone
	c.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	c.release()
	return nil
}

func (c *USBTMCChannel) release() {
	if c.intf != nil {
		c.intf.Close()
		c.intf = nil
	}
	if c.cfg != nil {
		_ = c.cfg.Close()
		c.cfg = nil
	}
	if c.dev != nil {
		_ = c.dev.Close()
		c.dev = nil
	}
	if c.usb != nil {
		_ = c.usb.Close()
		c.usb = nil
	}
}

// interruptLoop reads interrupt-IN notifications: SRQ packets go to the
// handler, status byte replies go to ReadStatusByte.
func (c *USBTMCChannel) interruptLoop(ctx context.Context) {
	defer close(c.intrDone)

	buf := make([]byte, c.epIntr.Desc.MaxPacketSize)
	for {
		n, err := c.epIntr.ReadContext(ctx, buf)
		if ctx.Err() != nil {
			return
		}
		if err != nil || n < 2 {
			continue
		}

		switch {
		case buf[0] == usb488NotifySRQ:
			c.mu.Lock()
			fn, on := c.srqFn, c.srqOn
			c.mu.Unlock()
			if on && fn != nil {
				fn(buf[1])
			}
		case buf[0]&0x80 != 0:
			select {
			case c.stbWait <- buf[1]:
			default:
			}
		}
	}
}

func (c *USBTMCChannel) nextTag() byte {
	c.tag++
	if c.tag == 0 {
		c.tag = 1
	}
	return c.tag
}

func (c *USBTMCChannel) wrap(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, gousb.ErrorTimeout) || errors.Is(err, gousb.TransferCancelled) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	if errors.Is(err, gousb.ErrorNoDevice) {
		return fmt.Errorf("%s: %w: %w", op, ErrClosed, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (c *USBTMCChannel) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

// encodeDevDepMsgOut frames a DEV_DEP_MSG_OUT transfer with EOM set,
// padded to a multiple of four bytes.
func encodeDevDepMsgOut(tag byte, data []byte) []byte {
	n := usbtmcHeaderSize + len(data)
	padded := (n + 3) &^ 3
	b := make([]byte, padded)
	b[0] = usbtmcDevDepMsgOut
	b[1] = tag
	b[2] = ^tag
	binary.LittleEndian.PutUint32(b[4:8], uint32(len(data)))
	b[8] = usbtmcAttrEOM
	copy(b[usbtmcHeaderSize:], data)
	return b
}

// encodeRequestDevDepMsgIn frames a REQUEST_DEV_DEP_MSG_IN transfer.
func encodeRequestDevDepMsgIn(tag byte, maxSize int) []byte {
	b := make([]byte, usbtmcHeaderSize)
	b[0] = usbtmcRequestDevDepMsgIn
	b[1] = tag
	b[2] = ^tag
	binary.LittleEndian.PutUint32(b[4:8], uint32(maxSize))
	return b
}

// decodeDevDepMsgIn validates a DEV_DEP_MSG_IN header and returns the
// payload and whether it ends the message.
func decodeDevDepMsgIn(b []byte, tag byte) ([]byte, bool, error) {
	if len(b) < usbtmcHeaderSize {
		return nil, false, fmt.Errorf("bulk in: short header (%d bytes)", len(b))
	}
	if b[0] != usbtmcDevDepMsgIn {
		return nil, false, fmt.Errorf("bulk in: unexpected message id %d", b[0])
	}
	if b[1] != tag || b[2] != ^tag {
		return nil, false, fmt.Errorf("bulk in: tag mismatch (got %d, want %d)", b[1], tag)
	}
	size := int(binary.LittleEndian.Uint32(b[4:8]))
	if size > len(b)-usbtmcHeaderSize {
		return nil, false, fmt.Errorf("bulk in: transfer size %d exceeds %d received bytes", size, len(b)-usbtmcHeaderSize)
	}
	return b[usbtmcHeaderSize : usbtmcHeaderSize+size], b[8]&usbtmcAttrEOM != 0, nil
}

var (
	_ Channel          = (*USBTMCChannel)(nil)
	_ ServiceRequester = (*USBTMCChannel)(nil)
)
