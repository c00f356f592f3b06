// Package register tracks and programs an instrument's IEEE-488.2/SCPI
// status-register hierarchy.
//
// The Engine keeps one Set per register Family (Standard Event, Service
// Request, Operation, Questionable, Measurement). Every cached bitmask is a
// Mask that starts unknown and becomes known only after a successful device
// read. Program-only writes invalidate the cached value instead of assuming
// the device accepted it.
//
// Command strings are supplied per family through Config, so the same
// engine drives SCPI instruments and other dialects. All device access goes
// through a Commander; operations that issue several exchanges run them as
// one uninterrupted unit via Commander.Exclusive.
package register
