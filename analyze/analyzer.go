package analyze

import (
	"regexp"
	"strings"

	"github.com/jonwraymond/shellcache/classify"
)

// Config tunes the analyzer's confidence policy.
type Config struct {
	// NeverThreshold is the confidence above which the analyzer suggests
	// StrategyNever. Default: 0.7.
	NeverThreshold float64
}

// Analyzer detects volatility signals in command output. Stateless and
// safe for concurrent use.
type Analyzer struct {
	config Config
}

// NewAnalyzer creates a new output analyzer.
func NewAnalyzer(config Config) *Analyzer {
	if config.NeverThreshold <= 0 || config.NeverThreshold > 1 {
		config.NeverThreshold = 0.7
	}
	return &Analyzer{config: config}
}

// AnalysisResult carries the detected signals for one output.
type AnalysisResult struct {
	HasTimestamps   bool
	HasRelativeTime bool
	HasProcessIDs   bool
	HasNetworkInfo  bool
	HasFileSizes    bool

	// ChangeIndicators names each detected signal category.
	ChangeIndicators []string

	// Confidence is the estimate in [0,1] that the output is
	// time-varying. Monotonically non-decreasing in the number of
	// detected signals.
	Confidence float64

	// SuggestedStrategy is NEVER above the confidence threshold,
	// otherwise the weakest tier implied by the detected signals,
	// defaulting to MEDIUM when nothing fires.
	SuggestedStrategy classify.Strategy
}

// Per-signal confidence weights. Any monotonic scheme works here; these
// sum past 1.0 deliberately so that several corroborating signals
// saturate the score.
const (
	weightTimestamp    = 0.30
	weightRelativeTime = 0.25
	weightProcessID    = 0.20
	weightNetwork      = 0.15
	weightFileSize     = 0.10
	weightKeyword      = 0.15
	weightExtraKeyword = 0.05
)

var (
	// ISO-8601 and common date/time formats.
	timestampPattern = regexp.MustCompile(
		`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}|\d{2}:\d{2}:\d{2}|` +
			`(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{1,2}\s+\d{2}:\d{2}`)

	relativeTimePattern = regexp.MustCompile(
		`(?i)\b\d+\s*(seconds?|minutes?|hours?|days?|weeks?)\s+ago\b|\bjust now\b`)

	// Explicit pid mentions, plus ps-style table rows (optional user
	// column, pid, %cpu).
	processIDPattern = regexp.MustCompile(
		`(?im)\bpid[:=\s]+\d+\b|\bprocess\s+\d+\b|^\s*(?:\S+\s+)?\d{2,7}\s+\d+\.\d`)

	networkPattern = regexp.MustCompile(
		`\b\d{1,3}(\.\d{1,3}){3}(:\d{1,5})?\b|\[[0-9a-fA-F:]+\]:\d{1,5}|\blocalhost:\d{1,5}\b`)

	fileSizePattern = regexp.MustCompile(
		`(?i)\b\d+(\.\d+)?\s*(KB|MB|GB|TB|KiB|MiB|GiB|bytes?)\b`)
)

var volatilityKeywords = []string{
	"live", "real-time", "currently", "running", "monitoring", "active",
}

// Analyze inspects the output text and returns the detected signals.
func (a *Analyzer) Analyze(output string) AnalysisResult {
	result := AnalysisResult{SuggestedStrategy: classify.StrategyMedium}
	if strings.TrimSpace(output) == "" {
		return result
	}

	confidence := 0.0

	if timestampPattern.MatchString(output) {
		result.HasTimestamps = true
		result.ChangeIndicators = append(result.ChangeIndicators, "timestamps")
		confidence += weightTimestamp
	}
	if relativeTimePattern.MatchString(output) {
		result.HasRelativeTime = true
		result.ChangeIndicators = append(result.ChangeIndicators, "relative-time")
		confidence += weightRelativeTime
	}
	if processIDPattern.MatchString(output) {
		result.HasProcessIDs = true
		result.ChangeIndicators = append(result.ChangeIndicators, "process-ids")
		confidence += weightProcessID
	}
	if networkPattern.MatchString(output) {
		result.HasNetworkInfo = true
		result.ChangeIndicators = append(result.ChangeIndicators, "network-endpoints")
		confidence += weightNetwork
	}
	if fileSizePattern.MatchString(output) {
		result.HasFileSizes = true
		result.ChangeIndicators = append(result.ChangeIndicators, "file-sizes")
		confidence += weightFileSize
	}

	lower := strings.ToLower(output)
	keywordHits := 0
	for _, kw := range volatilityKeywords {
		if strings.Contains(lower, kw) {
			keywordHits++
			result.ChangeIndicators = append(result.ChangeIndicators, "keyword:"+kw)
		}
	}
	if keywordHits > 0 {
		confidence += weightKeyword + weightExtraKeyword*float64(keywordHits-1)
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	result.Confidence = confidence
	result.SuggestedStrategy = a.suggest(result)
	return result
}

// suggest derives a strategy from the detected signals. Above the
// threshold the output is treated as non-deterministic. Below it, the
// strongest time-variance signal still pulls the tier down.
func (a *Analyzer) suggest(r AnalysisResult) classify.Strategy {
	if r.Confidence > a.config.NeverThreshold {
		return classify.StrategyNever
	}
	switch {
	case r.HasTimestamps || r.HasRelativeTime:
		return classify.StrategyShort
	case r.HasProcessIDs || r.HasNetworkInfo:
		return classify.StrategyShort
	case r.HasFileSizes:
		return classify.StrategyMedium
	case len(r.ChangeIndicators) > 0:
		return classify.StrategyMedium
	default:
		return classify.StrategyMedium
	}
}
