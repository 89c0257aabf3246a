package classify

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MaxPatternLength is the maximum allowed length for a rule pattern.
const MaxPatternLength = 256

// MaxQuantifiers is the maximum number of quantifiers allowed in a regex pattern.
const MaxQuantifiers = 8

// Sentinel errors for rule validation.
var (
	ErrEmptyPattern      = errors.New("classify: pattern is empty")
	ErrPatternTooLong    = errors.New("classify: pattern exceeds max length")
	ErrPatternTooComplex = errors.New("classify: pattern exceeds complexity budget")
	ErrInvalidPattern    = errors.New("classify: pattern does not compile")
	ErrRuleNotFound      = errors.New("classify: rule not found")
)

// Source identifies where a classification rule came from.
type Source string

const (
	SourceBuiltin    Source = "builtin"
	SourceHeuristic  Source = "heuristic"
	SourceAutoDetect Source = "auto-detect"
	SourceUser       Source = "user"
)

// Priority resolves conflicts between rules matching the same command.
// High-priority rules carry explicit operator or learned intent and
// always beat low-priority heuristics.
type Priority string

const (
	PriorityLow  Priority = "low"
	PriorityHigh Priority = "high"
)

// Rule maps a command pattern to a caching strategy.
//
// Identity is (Pattern, IsRegex): at most one rule per identity key is
// authoritative at any time. Re-adding an existing key updates HitCount
// and Timestamp in place rather than creating a duplicate.
type Rule struct {
	Pattern   string
	IsRegex   bool
	Strategy  Strategy
	Reason    string
	Source    Source
	Priority  Priority
	HitCount  int
	Timestamp time.Time

	re *regexp.Regexp // compiled form, set during validation
}

// Key returns the identity key for this rule.
func (r *Rule) Key() string {
	if r.IsRegex {
		return "re:" + r.Pattern
	}
	return "lit:" + r.Pattern
}

// Matches reports whether the rule matches the normalized command.
// Literal patterns are normalized the same way the command is, so
// casing and whitespace differences in a saved pattern cannot make a
// rule silently dead.
func (r *Rule) Matches(command string) bool {
	if r.IsRegex {
		return r.re != nil && r.re.MatchString(command)
	}
	return Normalize(r.Pattern) == command
}

// ValidatePattern checks a pattern against the same budget AddRule
// enforces, without installing anything. Used by persistence before a
// learned rule is written to disk.
func ValidatePattern(pattern string, isRegex bool) error {
	r := Rule{Pattern: pattern, IsRegex: isRegex}
	return r.validate()
}

var quantifierPattern = regexp.MustCompile(`[*+?]|\{\d+(,\d*)?\}`)

// nestedQuantifier matches a quantified group that is itself quantified,
// the classic catastrophic-backtracking shape such as (x+)+.
var nestedQuantifier = regexp.MustCompile(`\([^()]*[*+?][^()]*\)[*+?{]`)

// validate checks the pattern against the complexity budget and, for
// regex rules, compiles it. Learned patterns arrive from observed command
// strings, so they are validated before they are ever installed.
func (r *Rule) validate() error {
	if strings.TrimSpace(r.Pattern) == "" {
		return ErrEmptyPattern
	}
	if len(r.Pattern) > MaxPatternLength {
		return fmt.Errorf("%w: %d > %d", ErrPatternTooLong, len(r.Pattern), MaxPatternLength)
	}
	if !r.IsRegex {
		return nil
	}

	if n := len(quantifierPattern.FindAllString(r.Pattern, -1)); n > MaxQuantifiers {
		return fmt.Errorf("%w: %d quantifiers", ErrPatternTooComplex, n)
	}
	if nestedQuantifier.MatchString(r.Pattern) {
		return fmt.Errorf("%w: nested quantified group", ErrPatternTooComplex)
	}

	re, err := regexp.Compile(r.Pattern)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	r.re = re
	return nil
}
