package scpi

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Parse errors.
var (
	ErrEmptyResponse  = errors.New("empty response")
	ErrInvalidNumber  = errors.New("invalid numeric response")
	ErrMaskOutOfRange = errors.New("register mask out of range")
	ErrInvalidEntry   = errors.New("invalid error queue entry")
)

// Trim removes the response terminator and surrounding whitespace.
func Trim(resp string) string {
	return strings.TrimSpace(strings.TrimRight(resp, "\r\n"))
}

// ParseInt parses an integer response in NR1, NR2/NR3 (integral value) or
// IEEE-488.2 non-decimal (#H, #B, #Q) form.
func ParseInt(resp string) (int64, error) {
	s := Trim(resp)
	if s == "" {
		return 0, ErrEmptyResponse
	}

	if len(s) > 2 && s[0] == '#' {
		base := 0
		switch s[1] {
		case 'H', 'h':
			base = 16
		case 'B', 'b':
			base = 2
		case 'Q', 'q':
			base = 8
		}
		if base != 0 {
			v, err := strconv.ParseInt(s[2:], base, 64)
			if err != nil {
				return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
			}
			return v, nil
		}
	}

	if v, err := strconv.ParseInt(strings.TrimPrefix(s, "+"), 10, 64); err == nil {
		return v, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	return int64(f), nil
}

// ParseMask parses a register value. Status registers are at most 16 bits
// wide; anything outside 0..0xFFFF is rejected.
func ParseMask(resp string) (uint16, error) {
	v, err := ParseInt(resp)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > math.MaxUint16 {
		return 0, fmt.Errorf("%w: %d", ErrMaskOutOfRange, v)
	}
	return uint16(v), nil
}

// ParseFloat parses a real-valued response such as a line frequency.
func ParseFloat(resp string) (float64, error) {
	s := Trim(resp)
	if s == "" {
		return 0, ErrEmptyResponse
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	return f, nil
}

// Identity is the parsed *IDN? response.
type Identity struct {
	Manufacturer string
	Model        string
	SerialNumber string
	Firmware     string
	Raw          string
}

// String returns the raw identity string.
func (id Identity) String() string {
	return id.Raw
}

// ParseIdentity splits a comma-separated *IDN? response. Missing fields are
// left empty; the raw string is always kept.
func ParseIdentity(resp string) Identity {
	raw := Trim(resp)
	id := Identity{Raw: raw}

	fields := strings.SplitN(raw, ",", 4)
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) > 0 {
		id.Manufacturer = fields[0]
	}
	if len(fields) > 1 {
		id.Model = fields[1]
	}
	if len(fields) > 2 {
		id.SerialNumber = fields[2]
	}
	if len(fields) > 3 {
		id.Firmware = fields[3]
	}
	return id
}

// ParseErrorEntry parses one error-queue entry. Both `code,"message"` and
// tab-separated `code<TAB>message[<TAB>...]` forms are accepted.
func ParseErrorEntry(resp string) (*DeviceError, error) {
	s := Trim(resp)
	if s == "" {
		return nil, ErrEmptyResponse
	}

	var codePart, msgPart string
	if i := strings.IndexAny(s, ",\t"); i >= 0 {
		codePart, msgPart = s[:i], s[i+1:]
	} else {
		codePart = s
	}

	code, err := ParseInt(codePart)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEntry, s)
	}

	if j := strings.IndexByte(msgPart, '\t'); j >= 0 {
		msgPart = msgPart[:j]
	}
	msg := strings.TrimSpace(msgPart)
	if unq, err := strconv.Unquote(msg); err == nil {
		msg = unq
	} else {
		msg = strings.Trim(msg, `"`)
	}

	return &DeviceError{Code: int(code), Message: msg}, nil
}
