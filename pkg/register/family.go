package register

import (
	"fmt"
	"strings"
)

// Family identifies one register set in the status hierarchy.
type Family uint8

const (
	// FamilyStandardEvent is the IEEE-488.2 Standard Event Status register (ESR/ESE).
	FamilyStandardEvent Family = iota

	// FamilyServiceRequest is the status byte and its Service Request Enable mask.
	FamilyServiceRequest

	// FamilyOperation is the SCPI Operation status register.
	FamilyOperation

	// FamilyQuestionable is the SCPI Questionable status register.
	FamilyQuestionable

	// FamilyMeasurement is the Measurement event register.
	FamilyMeasurement
)

// Families lists every family in hierarchy order.
var Families = []Family{
	FamilyStandardEvent,
	FamilyServiceRequest,
	FamilyOperation,
	FamilyQuestionable,
	FamilyMeasurement,
}

// String returns the family name.
func (f Family) String() string {
	switch f {
	case FamilyStandardEvent:
		return "STANDARD_EVENT"
	case FamilyServiceRequest:
		return "SERVICE_REQUEST"
	case FamilyOperation:
		return "OPERATION"
	case FamilyQuestionable:
		return "QUESTIONABLE"
	case FamilyMeasurement:
		return "MEASUREMENT"
	default:
		return fmt.Sprintf("FAMILY(%d)", uint8(f))
	}
}

// ParseFamily parses a family name as written in profiles, e.g.
// "standard_event" or "OPERATION".
func ParseFamily(s string) (Family, error) {
	key := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for _, f := range Families {
		if f.String() == key {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFamily, s)
}

// Width returns the number of usable bits in the family's registers.
func (f Family) Width() int {
	switch f {
	case FamilyStandardEvent, FamilyServiceRequest:
		return 8
	default:
		return 15
	}
}

// Field identifies one bitmask within a register set.
type Field uint8

const (
	FieldEnable Field = iota
	FieldEvent
	FieldCondition
	FieldPositiveTransition
	FieldNegativeTransition
)

// String returns the field name.
func (f Field) String() string {
	switch f {
	case FieldEnable:
		return "ENABLE"
	case FieldEvent:
		return "EVENT"
	case FieldCondition:
		return "CONDITION"
	case FieldPositiveTransition:
		return "PTR"
	case FieldNegativeTransition:
		return "NTR"
	default:
		return fmt.Sprintf("FIELD(%d)", uint8(f))
	}
}
