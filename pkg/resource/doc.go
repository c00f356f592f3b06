// Package resource parses instrument resource names and checks whether the
// instrument they name exists.
//
// Resource names follow the VISA convention of "::"-separated fields:
//
//	TCPIP0::192.168.1.50::inst0::INSTR
//	TCPIP::scope.lab.local::5025::SOCKET
//	USB0::0x05E6::0x2450::04412345::INSTR
//	GPIB0::24::INSTR
//	ASRL/dev/ttyUSB0::INSTR
//
// Parse turns a name into a Name value; Name.String renders the canonical
// form, so two spellings of the same resource compare equal after parsing.
//
// A Probe answers "does this resource exist?" without opening a session.
// DialProbe checks TCP reachability, MDNSProbe looks for LXI instruments
// announced over multicast DNS, USBProbe matches USB device descriptors, and
// AnyProbe combines them.
package resource
