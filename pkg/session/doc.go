// Package session manages the lifecycle of one instrument session.
//
// A Manager opens a channel to a resource, wraps it for tracing and
// serialization, and builds the status register engine, the service
// request dispatcher and the reset/clear/init sequencer around it from an
// instrument profile.
//
// Open is atomic: when it returns nil the session is open and the
// instrument initialized; when it returns an error the channel has been
// released and the manager is closed. Failures carry the step that failed
// in an *OperationError.
//
// Lifecycle:
//
//	UNOPENED → OPENING → OPEN → CLOSING → CLOSED
//
// CLOSED is terminal. A failed Open goes straight from OPENING through
// CLOSING to CLOSED.
//
// Channels supplied through Config.Channel are borrowed: the manager
// detaches its handlers on close but never closes them.
package session
