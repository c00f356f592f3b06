// Package channel provides message channels to instruments.
//
// A Channel is the line-oriented transport the session core talks through:
// write a command, read a response line, serial-poll the status byte, and
// perform a selective device clear. Channels that can deliver hardware
// service requests also implement ServiceRequester.
//
// Implementations:
//
//   - SocketChannel: raw SCPI over TCP (port 5025). There is no out-of-band
//     status byte, so ReadStatusByte issues *STB?, and SRQ is unavailable.
//   - USBTMCChannel: USB Test and Measurement Class with the USB488
//     subclass. Messages use bulk endpoints; the status byte, device clear
//     and service requests use control and interrupt transfers.
//   - Emulator: an in-memory IEEE-488.2 instrument with a full status
//     register model, used when no hardware is attached and in tests.
//
// Dialer picks the implementation for a resource name.
package channel
