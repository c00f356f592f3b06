package register

import (
	"log/slog"
	"maps"
	"time"

	"github.com/benchlink/benchlink-go/pkg/clock"
	"github.com/benchlink/benchlink-go/pkg/scpi"
)

// DefaultRefractoryPeriod is the minimum wait after the preset command
// before the device's registers may be accessed again.
const DefaultRefractoryPeriod = 100 * time.Millisecond

// Commands holds the command strings for one register family.
// Write commands take the mask as a single %d verb. An empty string means
// the family does not support that access.
type Commands struct {
	EnableWrite    string `yaml:"enable_write"`
	EnableQuery    string `yaml:"enable_query"`
	EventQuery     string `yaml:"event_query"`
	ConditionQuery string `yaml:"condition_query"`
	PositiveWrite  string `yaml:"ptr_write"`
	PositiveQuery  string `yaml:"ptr_query"`
	NegativeWrite  string `yaml:"ntr_write"`
	NegativeQuery  string `yaml:"ntr_query"`
}

// SupportsTransitions reports whether edge filtering can be programmed.
func (c Commands) SupportsTransitions() bool {
	return c.PositiveWrite != "" && c.NegativeWrite != ""
}

// FamilyConfig configures one register family.
type FamilyConfig struct {
	Commands Commands `yaml:"commands"`

	// PresetEnable is the enable mask the family holds after PresetKnownState.
	PresetEnable uint16 `yaml:"preset_enable,omitempty"`

	// Labels maps bit numbers to names.
	Labels map[int]string `yaml:"labels,omitempty"`
}

// Config configures an Engine.
type Config struct {
	// Families holds the supported families. A family absent from the map
	// is not supported by the instrument.
	Families map[Family]FamilyConfig

	// PresetCommand restores the device's status subsystem to its preset
	// state. Empty disables the device command in PresetKnownState.
	PresetCommand string

	// RefractoryPeriod is enforced after PresetCommand before any further
	// register access. Zero uses DefaultRefractoryPeriod.
	RefractoryPeriod time.Duration

	// Clock is the time source for the refractory period. Nil uses the wall clock.
	Clock clock.Clock

	// Logger for engine events. Nil disables logging.
	Logger *slog.Logger
}

// DefaultConfig returns the IEEE-488.2/SCPI status model.
func DefaultConfig() Config {
	return Config{
		Families: map[Family]FamilyConfig{
			FamilyStandardEvent: {
				Commands: Commands{
					EnableWrite: scpi.CmdStandardEnable,
					EnableQuery: scpi.QueryStandardEnable,
					EventQuery:  scpi.QueryStandardEvent,
				},
				Labels: maps.Clone(scpi.StandardEventLabels),
			},
			FamilyServiceRequest: {
				Commands: Commands{
					EnableWrite:    scpi.CmdServiceEnable,
					EnableQuery:    scpi.QueryServiceEnable,
					ConditionQuery: scpi.QueryStatusByte,
				},
				Labels: maps.Clone(scpi.StatusByteLabels),
			},
			FamilyOperation:    scpiFamily("OPER", OperationLabels),
			FamilyQuestionable: scpiFamily("QUES", QuestionableLabels),
			FamilyMeasurement:  scpiFamily("MEAS", MeasurementLabels),
		},
		PresetCommand:    scpi.CmdStatusPreset,
		RefractoryPeriod: DefaultRefractoryPeriod,
	}
}

func scpiFamily(node string, labels map[int]string) FamilyConfig {
	prefix := "STAT:" + node
	return FamilyConfig{
		Commands: Commands{
			EnableWrite:    prefix + ":ENAB %d",
			EnableQuery:    prefix + ":ENAB?",
			EventQuery:     prefix + ":EVEN?",
			ConditionQuery: prefix + ":COND?",
			PositiveWrite:  prefix + ":PTR %d",
			PositiveQuery:  prefix + ":PTR?",
			NegativeWrite:  prefix + ":NTR %d",
			NegativeQuery:  prefix + ":NTR?",
		},
		Labels: maps.Clone(labels),
	}
}

// OperationLabels are the SCPI-defined Operation register bits.
var OperationLabels = map[int]string{
	0:  "Calibrating",
	1:  "Settling",
	2:  "Ranging",
	3:  "Sweeping",
	4:  "Measuring",
	5:  "Waiting for Trigger",
	6:  "Waiting for Arm",
	7:  "Correcting",
	13: "Instrument Summary",
	14: "Program Running",
}

// QuestionableLabels are the SCPI-defined Questionable register bits.
var QuestionableLabels = map[int]string{
	0:  "Voltage",
	1:  "Current",
	2:  "Time",
	3:  "Power",
	4:  "Temperature",
	5:  "Frequency",
	6:  "Phase",
	7:  "Modulation",
	8:  "Calibration",
	13: "Instrument Summary",
	14: "Command Warning",
}

// MeasurementLabels are common Measurement register bits.
var MeasurementLabels = map[int]string{
	0:  "Reading Available",
	1:  "Reading Overflow",
	8:  "Buffer Available",
	9:  "Buffer Half Full",
	10: "Buffer Full",
}
