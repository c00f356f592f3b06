package log

import (
	"fmt"
	"io"
	"time"
)

// Format writes a human-readable rendering of the event to w, one header
// line followed by indented details.
func Format(w io.Writer, event Event) {
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")

	var label string
	switch {
	case event.Message != nil:
		label = event.Message.Type.String()
	case event.Status != nil && event.Category == CategoryServiceRequest:
		label = "SERVICE_REQUEST"
	case event.Status != nil:
		label = "STATUS"
	case event.StateChange != nil:
		label = "STATE"
	case event.Register != nil:
		label = "REGISTER"
	case event.Error != nil:
		label = "ERROR"
	default:
		label = "UNKNOWN"
	}

	fmt.Fprintf(w, "%s [%s] %-3s %-8s %s", ts, shortID(event.SessionID), event.Direction, event.Layer, label)
	if event.Resource != "" {
		fmt.Fprintf(w, " %s", event.Resource)
	}
	fmt.Fprintln(w)

	switch {
	case event.Message != nil:
		m := event.Message
		if m.Text != "" {
			fmt.Fprintf(w, "  %q\n", m.Text)
		}
		if m.Latency != nil {
			fmt.Fprintf(w, "  Latency: %s\n", FormatDuration(*m.Latency))
		}
	case event.Status != nil:
		s := event.Status
		fmt.Fprintf(w, "  STB: 0x%02X (%s)\n", s.StatusByte, s.Source)
		if s.Description != "" {
			fmt.Fprintf(w, "  Bits: %s\n", s.Description)
		}
		if s.Reading != "" {
			fmt.Fprintf(w, "  Reading: %q\n", s.Reading)
		}
	case event.StateChange != nil:
		sc := event.StateChange
		fmt.Fprintf(w, "  %s: %s -> %s\n", sc.Entity, orDash(sc.OldState), sc.NewState)
		if sc.Reason != "" {
			fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
		}
	case event.Register != nil:
		r := event.Register
		fmt.Fprintf(w, "  %s %s: %s -> %s\n", r.Family, r.Field, formatMask(r.Old), formatMask(r.New))
	case event.Error != nil:
		e := event.Error
		fmt.Fprintf(w, "  Message: %s\n", e.Message)
		if e.Code != nil {
			fmt.Fprintf(w, "  Code: %d\n", *e.Code)
		}
		if e.Context != "" {
			fmt.Fprintf(w, "  Context: %s\n", e.Context)
		}
	}
}

// FormatDuration renders d with three decimals in the largest fitting unit.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

func shortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatMask(v *uint16) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("0x%04X", *v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
