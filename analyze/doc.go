// Package analyze inspects raw command output for signals that the
// output is time-varying and therefore unsafe to cache for long.
//
// Analysis is a pure function of the input text: timestamp, process-id,
// network-endpoint and file-size patterns plus a volatility keyword list
// each contribute to a confidence score and a suggested caching strategy.
package analyze
