// Package dupdetect flags commands whose output repeats within a short
// time window, the signal the learning loop uses to stop caching
// non-deterministic commands.
//
// Each (command, working directory) key carries a bounded history of
// recent result fingerprints; an identical fingerprint observed twice
// inside the window raises a duplicate signal.
package dupdetect
