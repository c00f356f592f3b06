package scpi

import "strings"

// IEEE-488.2 common commands and queries.
const (
	CmdClearStatus          = "*CLS"
	CmdReset                = "*RST"
	CmdOperationComplete    = "*OPC"
	QueryOperationComplete  = "*OPC?"
	QueryIdentity           = "*IDN?"
	QueryStatusByte         = "*STB?"
	QueryStandardEvent      = "*ESR?"
	QueryStandardEnable     = "*ESE?"
	CmdStandardEnable       = "*ESE %d"
	QueryServiceEnable      = "*SRE?"
	CmdServiceEnable        = "*SRE %d"
	CmdWait                 = "*WAI"
	QuerySystemError        = "SYST:ERR?"
	QuerySystemLineFreq     = "SYST:LFR?"
	CmdStatusPreset         = "STAT:PRES"
	QueryFetch              = "FETC?"
	DefaultLineFrequencyHz  = 60.0
	DefaultTermination      = "\n"
	MaxErrorQueueIterations = 64
)

// Status byte bits.
const (
	StatusMeasurementSummary  uint8 = 0x01
	StatusSystemSummary       uint8 = 0x02
	StatusErrorAvailable      uint8 = 0x04 // EAV
	StatusQuestionableSummary uint8 = 0x08 // QSB
	StatusMessageAvailable    uint8 = 0x10 // MAV
	StatusEventSummary        uint8 = 0x20 // ESB
	StatusRequestService      uint8 = 0x40 // RQS/MSS
	StatusOperationSummary    uint8 = 0x80 // OSB
)

// Standard Event Status Register bits.
const (
	EventOperationComplete  uint8 = 0x01 // OPC
	EventRequestControl     uint8 = 0x02 // RQC
	EventQueryError         uint8 = 0x04 // QYE
	EventDeviceError        uint8 = 0x08 // DDE
	EventExecutionError     uint8 = 0x10 // EXE
	EventCommandError       uint8 = 0x20 // CME
	EventUserRequest        uint8 = 0x40 // URQ
	EventPowerOn            uint8 = 0x80 // PON
	EventErrorBits                = EventQueryError | EventDeviceError | EventExecutionError | EventCommandError
)

// StandardEventLabels are the IEEE-488.2 names of the Standard Event bits,
// keyed by bit number.
var StandardEventLabels = map[int]string{
	0: "Operation Complete",
	1: "Request Control",
	2: "Query Error",
	3: "Device Dependent Error",
	4: "Execution Error",
	5: "Command Error",
	6: "User Request",
	7: "Power On",
}

// StatusByteLabels are the conventional names of the status byte bits,
// keyed by bit number.
var StatusByteLabels = map[int]string{
	0: "Measurement Summary",
	1: "System Summary",
	2: "Error Available",
	3: "Questionable Summary",
	4: "Message Available",
	5: "Event Summary",
	6: "Request Service",
	7: "Operation Summary",
}

// IsQuery reports whether a program message expects a response, that is
// whether the header of its last unit ends in '?'.
func IsQuery(msg string) bool {
	units := strings.Split(msg, ";")
	last := strings.TrimSpace(units[len(units)-1])
	header, _, _ := strings.Cut(last, " ")
	return strings.HasSuffix(header, "?")
}
