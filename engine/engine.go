package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/shellcache/analyze"
	"github.com/jonwraymond/shellcache/cache"
	"github.com/jonwraymond/shellcache/classify"
	"github.com/jonwraymond/shellcache/dupdetect"
	"github.com/jonwraymond/shellcache/guard"
	"github.com/jonwraymond/shellcache/learn"
	"github.com/jonwraymond/shellcache/observe"
)

// ErrClosed is returned by Execute after Close.
var ErrClosed = errors.New("engine: engine is closed")

// Executor runs a command and returns its result. The engine calls it
// on cache misses only.
type Executor func(ctx context.Context, command, cwd string) (cache.Result, error)

// Config configures the engine and its subsystems.
type Config struct {
	Store    cache.StoreConfig
	Analyzer analyze.Config
	Detector dupdetect.Config
	Rules    learn.Config
}

// Outcome is the result of one Execute call.
type Outcome struct {
	Result   cache.Result
	Cached   bool
	Strategy classify.Strategy
	Reason   string
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithLogger installs a structured logger. Default: no-op.
func WithLogger(l observe.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics installs a metrics recorder. Default: no-op.
func WithMetrics(m observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer installs a tracer. Default: no-op.
func WithTracer(t observe.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithGuard installs execution protection around the executor.
func WithGuard(g *guard.Guard) Option {
	return func(e *Engine) { e.protection = g }
}

// Engine is the cache orchestrator.
//
// Contract:
// - Concurrency: safe for concurrent use; concurrent Execute calls for
//   the same (command, cwd) run the executor once.
// - Degradation: classifier, analyzer, detector or persistence failures
//   never fail Execute; the executor result is returned uncached.
// - Shutdown: Close flushes pending rule persistence.
type Engine struct {
	store      *cache.Store
	classifier *classify.Classifier
	analyzer   *analyze.Analyzer
	detector   *dupdetect.Detector
	rules      *learn.Store
	protection *guard.Guard

	logger  observe.Logger
	metrics observe.Metrics
	tracer  observe.Tracer

	group     singleflight.Group
	closeOnce sync.Once
	closed    chan struct{}
}

// New creates an engine. The learned rule file is loaded and seeded
// into the classifier; a corrupt file is logged and the engine starts
// with built-ins only.
func New(cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:      cache.NewStore(cfg.Store),
		classifier: classify.NewClassifier(),
		analyzer:   analyze.NewAnalyzer(cfg.Analyzer),
		logger:     observe.NopLogger(),
		metrics:    observe.NopMetrics(),
		tracer:     observe.NewNoopTracer(),
		closed:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	if cfg.Rules.OnFlush == nil {
		cfg.Rules.OnFlush = func(err error) {
			e.metrics.RecordFlush(context.Background(), err)
		}
	}
	e.rules = learn.NewStore(cfg.Rules)
	e.detector = dupdetect.NewDetector(cfg.Detector, e.onDuplicateSignal)

	if err := e.rules.Initialize(); err != nil {
		e.logger.Warn(context.Background(), "rule file unreadable, starting with built-ins",
			observe.Field{Key: "error", Value: err.Error()})
	}
	for _, r := range e.rules.Rules() {
		priority := r.Priority
		if priority == "" {
			priority = classify.PriorityLow
		}
		if err := e.classifier.AddRule(r, priority); err != nil {
			e.logger.Warn(context.Background(), "skipping persisted rule",
				observe.Field{Key: "pattern", Value: r.Pattern},
				observe.Field{Key: "error", Value: err.Error()})
		}
	}

	return e, nil
}

// Execute serves (command, cwd) from the cache or runs the executor.
// Concurrent calls for the same key share a single execution.
func (e *Engine) Execute(ctx context.Context, command, cwd string, exec Executor) (*Outcome, error) {
	select {
	case <-e.closed:
		return nil, ErrClosed
	default:
	}

	if err := cache.ValidateCommand(command); err != nil {
		return nil, err
	}

	if entry, ok := e.store.Get(ctx, command, cwd); ok {
		e.metrics.RecordLookup(ctx, true)
		return &Outcome{
			Result:   entry.Result,
			Cached:   true,
			Strategy: entry.Strategy,
			Reason:   "served from cache",
		}, nil
	}
	e.metrics.RecordLookup(ctx, false)

	key := cache.Key(command, cwd)
	v, err, _ := e.group.Do(key, func() (any, error) {
		return e.executeFresh(ctx, command, cwd, exec)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Outcome), nil
}

// executeFresh runs the executor under guard, feeds the learning loop,
// and caches the result per the resolved strategy.
func (e *Engine) executeFresh(ctx context.Context, command, cwd string, exec Executor) (*Outcome, error) {
	meta := observe.CommandMeta{Command: command, Cwd: cwd, CacheKey: cache.Key(command, cwd)}
	ctx, span := e.tracer.StartSpan(ctx, meta)
	start := time.Now()

	var result cache.Result
	run := func(ctx context.Context) error {
		var err error
		result, err = exec(ctx, command, cwd)
		return err
	}

	var err error
	if e.protection != nil {
		err = e.protection.Execute(ctx, run)
	} else {
		err = run(ctx)
	}

	duration := time.Since(start)
	e.tracer.EndSpan(span, err)
	e.metrics.RecordExecution(ctx, meta, duration, err)

	if err != nil {
		e.logger.WithCommand(meta).Error(ctx, "command execution failed",
			observe.Field{Key: "duration_ms", Value: float64(duration.Milliseconds())},
			observe.Field{Key: "error", Value: err.Error()})
		return nil, err
	}

	// Duplicate check runs before classification so a signal emitted
	// here installs its rule in time to veto caching below.
	e.detector.CheckDuplicate(command, cwd, result)

	decision := e.classifier.Classify(command)
	e.metrics.RecordClassification(ctx, decision.Strategy.String(), "classifier")

	if decision.Strategy != classify.StrategyNever {
		if e.analyzeFresh(ctx, command, result) {
			decision = classify.Decision{
				Strategy: classify.StrategyNever,
				Reason:   "volatile output detected",
			}
		}
	}

	e.maybeCache(ctx, command, cwd, result, decision)

	return &Outcome{
		Result:   result,
		Cached:   false,
		Strategy: decision.Strategy,
		Reason:   decision.Reason,
	}, nil
}

// analyzeFresh runs heuristic output analysis. Above the confidence
// threshold it installs and persists a low-priority heuristic rule and
// reports true so the current result is not cached.
func (e *Engine) analyzeFresh(ctx context.Context, command string, result cache.Result) bool {
	analysis := e.analyzer.Analyze(result.Stdout + "\n" + result.Stderr)
	if analysis.SuggestedStrategy != classify.StrategyNever {
		return false
	}

	rule := classify.Rule{
		Pattern:  classify.Normalize(command),
		Strategy: classify.StrategyNever,
		Source:   classify.SourceHeuristic,
		Reason: fmt.Sprintf("volatile output (confidence %.2f): %v",
			analysis.Confidence, analysis.ChangeIndicators),
	}

	if err := e.classifier.AddRule(rule, classify.PriorityLow); err != nil {
		e.logger.Warn(ctx, "heuristic rule rejected",
			observe.Field{Key: "pattern", Value: rule.Pattern},
			observe.Field{Key: "error", Value: err.Error()})
		return true
	}
	e.persistRule(ctx, rule, classify.PriorityLow)
	e.metrics.RecordClassification(ctx, classify.StrategyNever.String(), string(classify.SourceHeuristic))
	return true
}

// maybeCache stores the result unless the tier, the TTL, or memory
// pressure forbids it. Store failures degrade to uncached.
func (e *Engine) maybeCache(ctx context.Context, command, cwd string, result cache.Result, decision classify.Decision) {
	if decision.Strategy == classify.StrategyNever {
		return
	}

	if e.protection != nil {
		switch e.protection.Pressure() {
		case guard.PressureCritical:
			purged := e.store.Purge()
			e.metrics.RecordEviction(ctx, int64(purged))
			e.logger.Warn(ctx, "memory pressure critical, cache purged",
				observe.Field{Key: "purged", Value: purged})
			return
		case guard.PressureHigh:
			e.logger.Debug(ctx, "memory pressure high, skipping cache store")
			return
		}
	}

	ttl := decision.TTL
	if ttl <= 0 {
		ttl = decision.Strategy.TTL()
	}
	if err := e.store.Set(ctx, command, cwd, result, decision.Strategy, ttl); err != nil {
		e.logger.Warn(ctx, "cache store failed",
			observe.Field{Key: "error", Value: err.Error()})
	}
}

// onDuplicateSignal promotes a never-cache rule when the same command
// keeps producing identical output, persists it, and invalidates any
// cached entries for the command.
func (e *Engine) onDuplicateSignal(sig dupdetect.Signal) {
	ctx := context.Background()

	rule := classify.Rule{
		Pattern:  classify.Normalize(sig.Command),
		Strategy: classify.StrategyNever,
		Source:   classify.SourceAutoDetect,
		Reason: fmt.Sprintf("identical output %d times within %s",
			sig.DuplicateCount, sig.TimeSpan.Round(time.Millisecond)),
	}

	if err := e.classifier.AddRule(rule, classify.PriorityHigh); err != nil {
		e.logger.Warn(ctx, "duplicate rule rejected",
			observe.Field{Key: "pattern", Value: rule.Pattern},
			observe.Field{Key: "error", Value: err.Error()})
		return
	}
	e.persistRule(ctx, rule, classify.PriorityHigh)

	removed := e.store.ClearCommand(sig.Command)
	e.metrics.RecordDuplicateSignal(ctx, sig.DuplicateCount)
	e.logger.Info(ctx, "duplicate execution detected, command marked never-cache",
		observe.Field{Key: "command", Value: sig.Command},
		observe.Field{Key: "duplicates", Value: sig.DuplicateCount},
		observe.Field{Key: "invalidated", Value: removed})
}

// persistRule saves a rule best-effort; the in-memory classifier stays
// authoritative if the write path fails.
func (e *Engine) persistRule(ctx context.Context, rule classify.Rule, priority classify.Priority) {
	rule.Priority = priority
	if err := e.rules.SaveRule(rule); err != nil {
		e.logger.Warn(ctx, "rule persistence failed",
			observe.Field{Key: "pattern", Value: rule.Pattern},
			observe.Field{Key: "error", Value: err.Error()})
	}
}

// AddRule installs a user rule at high priority, persists it, and
// invalidates cached entries matching the pattern.
func (e *Engine) AddRule(rule classify.Rule) error {
	if rule.Source == "" {
		rule.Source = classify.SourceUser
	}
	if err := e.classifier.AddRule(rule, classify.PriorityHigh); err != nil {
		return err
	}
	e.persistRule(context.Background(), rule, classify.PriorityHigh)

	if rule.IsRegex {
		if _, err := e.store.ClearPattern(rule.Pattern); err != nil {
			return err
		}
	} else {
		e.store.ClearCommand(rule.Pattern)
	}
	return nil
}

// RemoveRule deletes a rule from the classifier and the rule file.
func (e *Engine) RemoveRule(pattern string, isRegex bool) error {
	found := e.classifier.RemoveRule(pattern, isRegex)
	e.rules.RemoveRule(pattern, isRegex)
	if !found {
		return classify.ErrRuleNotFound
	}
	return nil
}

// Rules returns the installed rules, most recent first.
func (e *Engine) Rules() []classify.Rule {
	return e.classifier.Rules()
}

// Invalidate removes cached entries for a command across all working
// directories. Returns the count removed.
func (e *Engine) Invalidate(command string) int {
	e.detector.ClearHistory(command)
	return e.store.ClearCommand(command)
}

// InvalidatePattern removes cached entries whose command matches the
// regex. Returns the count removed.
func (e *Engine) InvalidatePattern(pattern string) (int, error) {
	return e.store.ClearPattern(pattern)
}

// Explain returns a human-readable classification trace for a command.
func (e *Engine) Explain(command string) string {
	return e.classifier.Explain(command)
}

// Stats aggregates subsystem statistics.
type Stats struct {
	Cache      cache.Stats
	Duplicates dupdetect.Stats
	Rules      learn.Stats
	RuleCount  int
}

// Stats returns a snapshot of engine statistics.
func (e *Engine) Stats() Stats {
	return Stats{
		Cache:      e.store.Stats(),
		Duplicates: e.detector.Stats(),
		Rules:      e.rules.Stats(),
		RuleCount:  len(e.classifier.Rules()),
	}
}

// Close stops the store sweep and flushes pending rule persistence.
// Safe to call more than once, including concurrently.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.closed)
		e.store.Close()
		err = e.rules.Close()
	})
	return err
}
