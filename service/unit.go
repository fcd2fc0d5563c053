/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package service provides the lifecycle building blocks that admission controllers run on:
// periodic workers, units that can be started and stopped, their composition,
// and a Service that stops everything on an OS signal.
package service

// Unit represents a service unit that can be started and stopped.
type Unit interface {
	// Start begins the unit's operation. It may block for the unit's lifetime.
	// If Start fails, it writes the error to fatalErr exactly once;
	// on success it never writes to the channel.
	Start(fatalErr chan<- error)

	// Stop halts the unit. It may be called even if Start has failed or was never called.
	// If gracefully is true, Stop waits for the in-progress work to finish.
	Stop(gracefully bool) error
}

// MetricsRegisterer is an interface for objects that can register its own metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
