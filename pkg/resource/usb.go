package resource

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/gousb"
)

// USBDevice describes an attached USB device.
type USBDevice struct {
	VendorID  uint16
	ProductID uint16
	Serial    string
}

// USBProbe matches USB resources against attached device descriptors.
type USBProbe struct {
	// Enumerate lists attached devices with the given ids. Nil uses libusb
	// through gousb.
	Enumerate func(ctx context.Context, vid, pid uint16) ([]USBDevice, error)
}

// Probe implements Probe.
func (p *USBProbe) Probe(ctx context.Context, name Name) error {
	if name.Interface != InterfaceUSB {
		return ErrNotApplicable
	}

	enumerate := p.Enumerate
	if enumerate == nil {
		enumerate = EnumerateUSB
	}

	devices, err := enumerate(ctx, name.VendorID, name.ProductID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	for _, d := range devices {
		if d.VendorID != name.VendorID || d.ProductID != name.ProductID {
			continue
		}
		if name.Serial == "" || d.Serial == name.Serial {
			return nil
		}
	}
	return fmt.Errorf("%w: no USB device %04X:%04X serial %q", ErrNotFound, name.VendorID, name.ProductID, name.Serial)
}

// EnumerateUSB lists attached devices with the given vendor and product id.
func EnumerateUSB(ctx context.Context, vid, pid uint16) ([]USBDevice, error) {
	usb := gousb.NewContext()
	defer usb.Close()

	devs, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		return uint16(desc.Vendor) == vid && uint16(desc.Product) == pid
	})
	// OpenDevices may return some devices alongside an error.
	if err != nil && !errors.Is(err, gousb.ErrorAccess) && len(devs) == 0 {
		return nil, fmt.Errorf("enumerate USB devices: %w", err)
	}

	out := make([]USBDevice, 0, len(devs))
	for _, dev := range devs {
		serial, _ := dev.SerialNumber()
		out = append(out, USBDevice{
			VendorID:  uint16(dev.Desc.Vendor),
			ProductID: uint16(dev.Desc.Product),
			Serial:    serial,
		})
		dev.Close()
	}
	return out, nil
}
