// Package srq delivers instrument service requests to the session.
//
// A Dispatcher learns about device conditions in one of two mutually
// exclusive ways: a handler attached to the channel's hardware SRQ line
// (ModeEventDriven), or a one-shot timer that reads the status byte and
// re-arms itself at the end of each tick (ModePolled). The timer is re-armed
// only while polling is enabled and the hardware path is inactive, and an
// error bit in the status byte disables polling so a failing device is not
// polled forever.
//
// Both modes feed the same handling path: derive the status flags, read a
// pending message if configured to, run the subsystem's process hook and
// publish one normalized Notification. Failures inside the hook are
// reported through Config.OnHandlerError and never reach the session.
package srq
