// Package telemetry streams channel table changes to admin clients over Server-Sent Events.
//
// Events carry monotonically increasing ids and are kept in a bounded buffer so a client
// reconnecting with Last-Event-ID receives what it missed.
package telemetry
