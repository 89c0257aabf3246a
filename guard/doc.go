// Package guard protects the command execution path.
//
// It provides a circuit breaker that stops dispatching to a repeatedly
// failing executor, a bulkhead bounding concurrent commands, a per-command
// timeout, and a memory monitor the orchestrator consults to shed cache
// entries under pressure. Guard composes them in a fixed order.
package guard
