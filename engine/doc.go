// Package engine wires the cache, classifier, analyzer, duplicate
// detector and rule persistence behind a single Execute call.
//
// The engine owns the learning loop: duplicate executions promote
// never-cache rules, volatile output installs heuristic rules, and
// every learned rule is persisted and applied to future requests.
// Failures inside the cache path degrade to uncached execution; the
// executor result is always returned.
package engine
