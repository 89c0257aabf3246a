// Package observe provides telemetry for the command cache.
//
// It is a pure instrumentation library: no execution, no transport, no
// I/O beyond exporter setup. The engine wires an Observer in and emits
// spans for command executions, counters for cache lookups and
// classifications, and structured logs with command output redacted.
package observe
