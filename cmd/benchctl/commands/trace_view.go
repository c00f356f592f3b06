package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/benchlink/benchlink-go/pkg/log"
)

// RunView prints every event of the trace file matching opts.
func RunView(path string, opts FilterOptions, w io.Writer) error {
	filter, err := opts.Build()
	if err != nil {
		return err
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		log.Format(w, event)
		fmt.Fprintln(w)
	}
}
