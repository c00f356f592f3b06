package resource

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Interface is the bus type of a resource.
type Interface uint8

const (
	InterfaceUnknown Interface = iota
	InterfaceTCPIP
	InterfaceUSB
	InterfaceGPIB
	InterfaceASRL
)

// String returns the VISA interface keyword.
func (i Interface) String() string {
	switch i {
	case InterfaceTCPIP:
		return "TCPIP"
	case InterfaceUSB:
		return "USB"
	case InterfaceGPIB:
		return "GPIB"
	case InterfaceASRL:
		return "ASRL"
	default:
		return "UNKNOWN"
	}
}

// Class is the resource class suffix.
type Class uint8

const (
	ClassInstr Class = iota
	ClassSocket
	ClassRaw
)

// String returns the VISA resource class keyword.
func (c Class) String() string {
	switch c {
	case ClassSocket:
		return "SOCKET"
	case ClassRaw:
		return "RAW"
	default:
		return "INSTR"
	}
}

// Default ports for LAN instruments.
const (
	// DefaultSocketPort is the conventional raw SCPI socket port.
	DefaultSocketPort = 5025

	// DefaultLANDevice is the LAN device name assumed when none is given.
	DefaultLANDevice = "inst0"
)

// Name is a parsed resource name.
type Name struct {
	Interface Interface
	Board     int
	Class     Class

	// TCPIP
	Host   string
	Port   int
	Device string

	// USB
	VendorID     uint16
	ProductID    uint16
	Serial       string
	USBInterface int
	HasInterface bool

	// GPIB
	Primary      int
	Secondary    int
	HasSecondary bool

	// ASRL
	Path string
}

// String returns the canonical resource name.
func (n Name) String() string {
	var b strings.Builder

	b.WriteString(n.Interface.String())
	if n.Interface == InterfaceASRL && n.Path != "" {
		b.WriteString(n.Path)
	} else {
		b.WriteString(strconv.Itoa(n.Board))
	}

	switch n.Interface {
	case InterfaceTCPIP:
		fmt.Fprintf(&b, "::%s", n.Host)
		if n.Class == ClassSocket {
			fmt.Fprintf(&b, "::%d", n.Port)
		} else {
			fmt.Fprintf(&b, "::%s", n.deviceOrDefault())
		}
	case InterfaceUSB:
		fmt.Fprintf(&b, "::0x%04X::0x%04X::%s", n.VendorID, n.ProductID, n.Serial)
		if n.HasInterface {
			fmt.Fprintf(&b, "::%d", n.USBInterface)
		}
	case InterfaceGPIB:
		fmt.Fprintf(&b, "::%d", n.Primary)
		if n.HasSecondary {
			fmt.Fprintf(&b, "::%d", n.Secondary)
		}
	}

	fmt.Fprintf(&b, "::%s", n.Class)
	return b.String()
}

// Address returns the host:port to dial for a TCPIP resource. INSTR
// resources without an explicit port use the raw socket port.
func (n Name) Address() string {
	port := n.Port
	if port == 0 {
		port = DefaultSocketPort
	}
	return net.JoinHostPort(strings.Trim(n.Host, "[]"), strconv.Itoa(port))
}

// IsLAN reports whether the resource is reached over TCP/IP.
func (n Name) IsLAN() bool {
	return n.Interface == InterfaceTCPIP
}

func (n Name) deviceOrDefault() string {
	if n.Device == "" {
		return DefaultLANDevice
	}
	return n.Device
}
