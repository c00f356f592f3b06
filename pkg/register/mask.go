package register

import (
	"fmt"
	"math/bits"
)

// Mask is a register bitmask that may not be known yet.
// The zero value is unknown, which is distinct from a known zero.
type Mask struct {
	value uint16
	known bool
}

// Known returns a known mask with value v.
func Known(v uint16) Mask {
	return Mask{value: v, known: true}
}

// Unknown returns an unknown mask.
func Unknown() Mask {
	return Mask{}
}

// Value returns the mask value and whether it is known.
func (m Mask) Value() (uint16, bool) {
	return m.value, m.known
}

// IsKnown reports whether the value came from a device read.
func (m Mask) IsKnown() bool {
	return m.known
}

// Or returns the value if known, else def.
func (m Mask) Or(def uint16) uint16 {
	if !m.known {
		return def
	}
	return m.value
}

// Has reports whether bit is set. An unknown mask has no bits set.
func (m Mask) Has(bit int) bool {
	return m.known && bit >= 0 && bit < 16 && m.value&(1<<bit) != 0
}

// Bits returns the numbers of the set bits in ascending order.
func (m Mask) Bits() []int {
	if !m.known {
		return nil
	}
	var out []int
	for v := m.value; v != 0; v &= v - 1 {
		out = append(out, bits.TrailingZeros16(v))
	}
	return out
}

// String returns "0x%04X" or "unknown".
func (m Mask) String() string {
	if !m.known {
		return "unknown"
	}
	return fmt.Sprintf("0x%04X", m.value)
}
