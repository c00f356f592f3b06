package commands

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/benchlink/benchlink-go/pkg/log"
)

// RunExport writes the trace file to w as JSON lines or CSV.
func RunExport(path, format string, w io.Writer) error {
	var write func(*log.Reader, io.Writer) error
	switch format {
	case "jsonl":
		write = exportJSONL
	case "csv":
		write = exportCSV
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	return write(reader, w)
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	enc := json.NewEncoder(w)
	return eachEvent(reader, func(event log.Event) error {
		return enc.Encode(event)
	})
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "session_id", "resource", "direction", "layer", "category", "type", "detail"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	err := eachEvent(reader, func(event log.Event) error {
		kind, detail := summarize(event)
		return cw.Write([]string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.SessionID,
			event.Resource,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			kind,
			detail,
		})
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// summarize returns a type label and a one-line detail for event.
func summarize(event log.Event) (string, string) {
	switch {
	case event.Message != nil:
		return event.Message.Type.String(), event.Message.Text
	case event.Status != nil:
		return "status", fmt.Sprintf("0x%02X %s", event.Status.StatusByte, event.Status.Source)
	case event.StateChange != nil:
		sc := event.StateChange
		return "state", fmt.Sprintf("%s %s->%s", sc.Entity, sc.OldState, sc.NewState)
	case event.Register != nil:
		return "register", event.Register.Family + " " + event.Register.Field
	case event.Error != nil:
		return "error", event.Error.Message
	default:
		return "unknown", ""
	}
}

func eachEvent(reader *log.Reader, fn func(log.Event) error) error {
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(event); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
	}
}
