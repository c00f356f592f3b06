package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/benchlink/benchlink-go/pkg/log"
)

// RunFilter copies the events matching opts into a new trace file and
// returns how many were written.
func RunFilter(path, output string, opts FilterOptions) (int, error) {
	if output == "" {
		return 0, errors.New("output path required")
	}
	filter, err := opts.Build()
	if err != nil {
		return 0, err
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output trace: %w", err)
	}
	defer logger.Close()

	count := 0
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("failed to read event: %w", err)
		}
		logger.Log(event)
		count++
	}
}
