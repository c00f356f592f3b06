// Package scpi holds the small amount of IEEE-488.2 response handling the
// control-plane core needs: numeric and register-mask responses, error-queue
// entries, and the *IDN? identity string.
//
// It deliberately does not implement a SCPI command grammar. Command strings
// are supplied by instrument profiles (see package profile), so the same code
// drives SCPI instruments and instruments that speak an embedded-script
// dialect.
//
// # Numeric Responses
//
// Instruments answer register queries in several forms:
//
//	32        NR1
//	+32       NR1 with sign
//	3.2E+01   NR3
//	#H20      hexadecimal (IEEE-488.2 non-decimal numeric)
//	#B100000  binary
//	#Q40      octal
//
// ParseInt and ParseMask accept all of them.
//
// # Error Queue
//
// Error-queue entries come back either as SCPI's `-113,"Undefined header"` or
// as tab-separated fields from script-based instruments. ParseErrorEntry
// normalizes both into a DeviceError. Code 0 means "no error".
package scpi
