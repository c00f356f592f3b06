package interactive

import (
	"fmt"
	"io"
	"strings"

	"github.com/benchlink/benchlink-go/pkg/register"
	"github.com/benchlink/benchlink-go/pkg/session"
)

// WriteSummary prints the session state, identity and line frequency.
func WriteSummary(w io.Writer, m *session.Manager) {
	fmt.Fprintf(w, "Resource:       %s\n", m.Resource())
	fmt.Fprintf(w, "State:          %s\n", m.State())
	if id := m.SessionID(); id != "" {
		fmt.Fprintf(w, "Session:        %s\n", id)
	}
	if !m.IsOpen() {
		return
	}
	id := m.Identity()
	fmt.Fprintf(w, "Identity:       %s\n", orNone(id.Raw))
	if id.Manufacturer != "" {
		fmt.Fprintf(w, "  Manufacturer: %s\n", id.Manufacturer)
		fmt.Fprintf(w, "  Model:        %s\n", id.Model)
		fmt.Fprintf(w, "  Serial:       %s\n", id.SerialNumber)
		fmt.Fprintf(w, "  Firmware:     %s\n", id.Firmware)
	}
	fmt.Fprintf(w, "Line frequency: %s\n", m.LineFrequency())
	fmt.Fprintf(w, "Initialized:    %t\n", m.IsInitialized())
	fmt.Fprintf(w, "Emulated:       %t\n", !m.Enabled())
	if d := m.Dispatcher(); d != nil {
		fmt.Fprintf(w, "Notification:   %s\n", d.Mode())
	}
	if a := m.LastAction(); a != "" {
		fmt.Fprintf(w, "Last action:    %s\n", a)
	}
}

// WriteRegisters prints the cached masks of every supported family.
func WriteRegisters(w io.Writer, e *register.Engine) {
	if e == nil {
		fmt.Fprintln(w, "No register engine (session not open)")
		return
	}
	snap := e.Snapshot()
	fmt.Fprintf(w, "%-16s %-8s %-8s %-9s %-8s %-8s\n", "FAMILY", "ENABLE", "EVENT", "CONDITION", "PTR", "NTR")
	for _, f := range register.Families {
		set, ok := snap[f]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%-16s %-8s %-8s %-9s %-8s %-8s\n", f,
			short(set.Enable), short(set.Event), short(set.Condition),
			short(set.PositiveTransition), short(set.NegativeTransition))
		if v, known := set.Event.Value(); known && v != 0 {
			fmt.Fprintf(w, "  events: %s\n", strings.Join(e.Describe(f, v), ", "))
		}
	}
}

func short(m register.Mask) string {
	if !m.IsKnown() {
		return "-"
	}
	return m.String()
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
