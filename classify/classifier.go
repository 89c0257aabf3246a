package classify

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Decision is the outcome of classifying a command.
type Decision struct {
	Strategy Strategy
	TTL      time.Duration
	Reason   string
}

// Classifier resolves commands to caching decisions.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Determinism: Classify is idempotent between rule changes.
// - Errors: AddRule rejects invalid patterns synchronously; Classify
//   never fails, falling back to StrategyMedium.
type Classifier struct {
	mu    sync.RWMutex
	rules map[string]*Rule
}

// NewClassifier creates an empty classifier. Learned rules are typically
// seeded from a learn.Store after its initial load.
func NewClassifier() *Classifier {
	return &Classifier{rules: make(map[string]*Rule)}
}

// AddRule installs or updates a rule. If a rule with the same identity
// key (pattern, isRegex) exists, its hit count is incremented and its
// timestamp refreshed; strategy, reason, source and priority are taken
// from the new rule. Invalid patterns are rejected and never installed.
func (c *Classifier) AddRule(rule Rule, priority Priority) error {
	rule.Priority = priority
	if err := rule.validate(); err != nil {
		return err
	}
	if rule.Timestamp.IsZero() {
		rule.Timestamp = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.rules[rule.Key()]; ok {
		existing.HitCount++
		existing.Timestamp = rule.Timestamp
		existing.Strategy = rule.Strategy
		existing.Reason = rule.Reason
		existing.Source = rule.Source
		existing.Priority = rule.Priority
		existing.re = rule.re
		return nil
	}

	if rule.HitCount == 0 {
		rule.HitCount = 1
	}
	c.rules[rule.Key()] = &rule
	return nil
}

// RemoveRule deletes a rule by identity key. Returns false if absent.
func (c *Classifier) RemoveRule(pattern string, isRegex bool) bool {
	r := Rule{Pattern: pattern, IsRegex: isRegex}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.rules[r.Key()]; !ok {
		return false
	}
	delete(c.rules, r.Key())
	return true
}

// Rules returns a snapshot of the installed rules.
func (c *Classifier) Rules() []Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Rule, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// Classify resolves a command to a caching decision.
//
// Resolution order, first match wins:
//  1. exact-match rule, priority high (latest timestamp wins ties)
//  2. regex rule, priority high, tested in descending recency
//  3. exact-match rule, priority low
//  4. regex rule, priority low
//  5. built-in command table
//  6. default: StrategyMedium
func (c *Classifier) Classify(command string) Decision {
	normalized := Normalize(command)

	c.mu.RLock()
	exact, regex := c.partitionLocked()
	for _, pri := range []Priority{PriorityHigh, PriorityLow} {
		if r := matchFirst(exact[pri], normalized); r != nil {
			d := decisionFrom(r)
			c.mu.RUnlock()
			return d
		}
		if r := matchFirst(regex[pri], normalized); r != nil {
			d := decisionFrom(r)
			c.mu.RUnlock()
			return d
		}
	}
	c.mu.RUnlock()

	if strategy, reason, ok := builtinLookup(normalized); ok {
		return Decision{Strategy: strategy, TTL: strategy.TTL(), Reason: reason}
	}

	return Decision{
		Strategy: StrategyMedium,
		TTL:      StrategyMedium.TTL(),
		Reason:   "no matching rule, default strategy",
	}
}

// Explain returns a human-readable trace of how a command resolves.
func (c *Classifier) Explain(command string) string {
	normalized := Normalize(command)
	d := c.Classify(command)

	var b strings.Builder
	fmt.Fprintf(&b, "command: %q\n", command)
	fmt.Fprintf(&b, "normalized: %q\n", normalized)

	c.mu.RLock()
	total := len(c.rules)
	c.mu.RUnlock()
	fmt.Fprintf(&b, "rules consulted: %d\n", total)

	fmt.Fprintf(&b, "strategy: %s (ttl %s)\n", d.Strategy, d.TTL)
	fmt.Fprintf(&b, "reason: %s", d.Reason)
	return b.String()
}

// partitionLocked splits rules into exact and regex groups per priority,
// each sorted by descending timestamp. Callers must hold at least a read
// lock.
func (c *Classifier) partitionLocked() (exact, regex map[Priority][]*Rule) {
	exact = map[Priority][]*Rule{}
	regex = map[Priority][]*Rule{}
	for _, r := range c.rules {
		if r.IsRegex {
			regex[r.Priority] = append(regex[r.Priority], r)
		} else {
			exact[r.Priority] = append(exact[r.Priority], r)
		}
	}
	for _, group := range []map[Priority][]*Rule{exact, regex} {
		for _, rules := range group {
			sort.Slice(rules, func(i, j int) bool {
				return rules[i].Timestamp.After(rules[j].Timestamp)
			})
		}
	}
	return exact, regex
}

func matchFirst(rules []*Rule, command string) *Rule {
	for _, r := range rules {
		if r.Matches(command) {
			return r
		}
	}
	return nil
}

func decisionFrom(r *Rule) Decision {
	reason := r.Reason
	if reason == "" {
		reason = fmt.Sprintf("%s rule %q (%s priority)", r.Source, r.Pattern, r.Priority)
	} else {
		reason = fmt.Sprintf("%s (%s rule %q, %s priority)", r.Reason, r.Source, r.Pattern, r.Priority)
	}
	return Decision{Strategy: r.Strategy, TTL: r.Strategy.TTL(), Reason: reason}
}
