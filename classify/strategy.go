package classify

import "time"

// Strategy represents a cache-lifetime tier for command output.
type Strategy int

const (
	// StrategyNever means the output must not be cached.
	StrategyNever Strategy = iota
	// StrategyShort caches output for 30 seconds.
	StrategyShort
	// StrategyMedium caches output for 5 minutes.
	StrategyMedium
	// StrategyLong caches output for 30 minutes.
	StrategyLong
	// StrategyPermanent caches output for 60 minutes.
	StrategyPermanent
)

// String returns the string representation of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyNever:
		return "NEVER"
	case StrategyShort:
		return "SHORT"
	case StrategyMedium:
		return "MEDIUM"
	case StrategyLong:
		return "LONG"
	case StrategyPermanent:
		return "PERMANENT"
	default:
		return "unknown"
	}
}

// TTL returns the time-to-live for entries cached under this strategy.
// StrategyNever returns 0, meaning the output is not cached at all.
func (s Strategy) TTL() time.Duration {
	switch s {
	case StrategyShort:
		return 30 * time.Second
	case StrategyMedium:
		return 5 * time.Minute
	case StrategyLong:
		return 30 * time.Minute
	case StrategyPermanent:
		return 60 * time.Minute
	default:
		return 0
	}
}

// ParseStrategy parses a strategy name as it appears in the rule file.
// Unknown names return StrategyMedium and ok=false.
func ParseStrategy(s string) (Strategy, bool) {
	switch s {
	case "NEVER":
		return StrategyNever, true
	case "SHORT":
		return StrategyShort, true
	case "MEDIUM":
		return StrategyMedium, true
	case "LONG":
		return StrategyLong, true
	case "PERMANENT":
		return StrategyPermanent, true
	default:
		return StrategyMedium, false
	}
}
