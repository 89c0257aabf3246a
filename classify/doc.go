// Package classify decides how long a command's output may be cached.
//
// It provides a Classifier that resolves a command string to a Strategy
// tier by merging user and auto-detected rules, heuristic suggestions,
// and a built-in table of known commands, with explicit priority and
// tie-break ordering.
package classify
