package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/benchlink/benchlink-go/pkg/log"
)

// Stats holds aggregate statistics about a trace file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Sessions          map[string]*SessionStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// SessionStats holds statistics for one session.
type SessionStats struct {
	Resource        string
	FirstSeen       time.Time
	LastSeen        time.Time
	Events          int
	Commands        int
	Queries         int
	ServiceRequests int
	Errors          int

	latencyTotal time.Duration
	latencyCount int
}

// MeanLatency returns the average query response latency.
func (s *SessionStats) MeanLatency() time.Duration {
	if s.latencyCount == 0 {
		return 0
	}
	return s.latencyTotal / time.Duration(s.latencyCount)
}

// CollectStats reads the trace file and aggregates its events.
func CollectStats(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Sessions:          make(map[string]*SessionStats),
	}

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
	return stats, nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	sess, ok := s.Sessions[event.SessionID]
	if !ok {
		sess = &SessionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Sessions[event.SessionID] = sess
	}
	sess.Events++
	if event.Timestamp.After(sess.LastSeen) {
		sess.LastSeen = event.Timestamp
	}
	if sess.Resource == "" {
		sess.Resource = event.Resource
	}

	switch {
	case event.Message != nil:
		switch event.Message.Type {
		case log.MessageTypeCommand:
			sess.Commands++
		case log.MessageTypeQuery:
			sess.Queries++
		}
		if event.Message.Latency != nil {
			sess.latencyTotal += *event.Message.Latency
			sess.latencyCount++
		}
	case event.Category == log.CategoryServiceRequest:
		sess.ServiceRequests++
	case event.Error != nil:
		sess.Errors++
		s.Errors++
	}
}

// RunStats prints statistics about the trace file.
func RunStats(path string, w io.Writer) error {
	stats, err := CollectStats(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Instrument Trace Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Millisecond))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerChannel, log.LayerRegister, log.LayerSession} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-18s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for c := log.CategoryMessage; c <= log.CategoryServiceRequest; c++ {
		if count := stats.EventsByCategory[c]; count > 0 {
			fmt.Fprintf(w, "  %-18s %d\n", c.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-18s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
	ids := make([]string, 0, len(stats.Sessions))
	for id := range stats.Sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return stats.Sessions[ids[i]].FirstSeen.Before(stats.Sessions[ids[j]].FirstSeen)
	})
	for _, id := range ids {
		s := stats.Sessions[id]
		short := id
		if len(short) > 8 {
			short = short[:8]
		}
		fmt.Fprintf(w, "\n  [%s] %d events, duration %s\n", short, s.Events, s.LastSeen.Sub(s.FirstSeen).Round(time.Millisecond))
		if s.Resource != "" {
			fmt.Fprintf(w, "           Resource: %s\n", s.Resource)
		}
		fmt.Fprintf(w, "           Commands: %d, Queries: %d\n", s.Commands, s.Queries)
		if lat := s.MeanLatency(); lat > 0 {
			fmt.Fprintf(w, "           Mean latency: %s\n", log.FormatDuration(lat))
		}
		if s.ServiceRequests > 0 {
			fmt.Fprintf(w, "           Service requests: %d\n", s.ServiceRequests)
		}
		if s.Errors > 0 {
			fmt.Fprintf(w, "           Errors: %d\n", s.Errors)
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
