package session

import (
	"context"
	"log/slog"

	"github.com/benchlink/benchlink-go/pkg/channel"
	"github.com/benchlink/benchlink-go/pkg/clock"
	"github.com/benchlink/benchlink-go/pkg/log"
	"github.com/benchlink/benchlink-go/pkg/metrics"
	"github.com/benchlink/benchlink-go/pkg/profile"
	"github.com/benchlink/benchlink-go/pkg/resource"
	"github.com/benchlink/benchlink-go/pkg/sequence"
	"github.com/benchlink/benchlink-go/pkg/srq"
)

// HookEvent is passed to lifecycle hooks.
type HookEvent struct {
	Resource resource.Name
	Model    string

	cancelable bool
	canceled   bool
	reason     string
}

// Cancel asks the manager to abandon the operation. It has no effect on
// hooks that are not cancelable.
func (e *HookEvent) Cancel(reason string) {
	if !e.cancelable {
		return
	}
	e.canceled = true
	e.reason = reason
}

// Cancelable reports whether Cancel has an effect.
func (e *HookEvent) Cancelable() bool {
	return e.cancelable
}

// Canceled reports whether a hook canceled the operation.
func (e *HookEvent) Canceled() bool {
	return e.canceled
}

// Reason returns the reason given to Cancel.
func (e *HookEvent) Reason() string {
	return e.reason
}

// Hook is a lifecycle callback. A returned error fails the operation.
// Hooks run on the caller's goroutine and must not call Open or Close.
type Hook func(ctx context.Context, ev *HookEvent) error

// Hooks are the lifecycle callbacks of a Manager. Nil hooks are skipped.
type Hooks struct {
	BeforeOpening Hook

	// Opening runs after the channel is open, before the open sequence.
	// Cancelable.
	Opening Hook

	// Initializing runs after the open sequence. Cancelable.
	Initializing Hook

	// Initialized runs once the session is open and initialized.
	Initialized Hook

	// Closing runs first during close. Canceling it is logged and ignored.
	Closing Hook

	Closed Hook
}

// Config configures a Manager.
type Config struct {
	// Profile describes the instrument. Nil loads profile.Default.
	Profile *profile.Profile

	// Opener creates the channel on Open. Nil uses a channel.Dialer.
	Opener channel.Opener

	// Channel, if set, is used instead of Opener. The manager borrows it
	// and never closes it.
	Channel channel.Channel

	// Probe checks resource existence for Validate. Nil uses
	// resource.Default.
	Probe resource.Probe

	// Subsystems take part in the reset/clear/init sequence.
	Subsystems []sequence.Presettable

	// Process is run for every status byte the dispatcher handles.
	Process srq.ProcessFunc

	Hooks Hooks

	// Trace receives protocol trace events. Nil disables tracing.
	Trace log.Logger

	Metrics *metrics.Metrics
	Clock   clock.Clock

	// Logger for session events. Nil disables logging.
	Logger *slog.Logger
}
