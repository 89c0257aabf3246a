// Package learn durably persists learned classification rules.
//
// Rules are kept in memory and flushed to a versioned JSON file with
// debounced writes: bursts of rule saves collapse into one disk write
// after a quiet period. The previous file generation is rotated to a
// backup before each overwrite, and Close flushes any pending write.
package learn
