package learn

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonwraymond/shellcache/classify"
)

// FileVersion is the rule file format version this package writes.
const FileVersion = 1

// Sentinel errors for persistence operations.
var (
	ErrNotInitialized = errors.New("learn: store not initialized")
	ErrClosed         = errors.New("learn: store is closed")
)

// Config configures the rule store.
type Config struct {
	// Path is the rule file location. The backup generation lives at
	// Path + ".bak". Default: $HOME/.shellcache/rules.json.
	Path string

	// Debounce is the quiet period that coalesces rapid SaveRule calls
	// into a single disk write. Default: 1 second.
	Debounce time.Duration

	// OnFlush, when set, is called after every flush attempt with the
	// write error (nil on success). Invoked outside the rule lock.
	OnFlush func(err error)
}

// Store holds learned classification rules and persists them with
// debounced writes.
//
// Contract:
// - Concurrency: safe for concurrent use; flushes never hold the rule
//   lock during file I/O.
// - Single writer: exactly one process owns the file path.
// - Shutdown: Close cancels any pending timer and flushes synchronously.
type Store struct {
	config Config

	mu      sync.Mutex
	rules   map[string]*classify.Rule
	timer   *time.Timer
	dirty   bool
	loaded  bool
	closed  bool
	savedAt time.Time

	flushMu       sync.Mutex // serializes file writes
	flushes       int64
	writeFailures int64
}

// NewStore creates a rule store. Call Initialize before use.
func NewStore(config Config) *Store {
	if config.Path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		config.Path = filepath.Join(home, ".shellcache", "rules.json")
	}
	if config.Debounce <= 0 {
		config.Debounce = time.Second
	}
	return &Store{
		config: config,
		rules:  make(map[string]*classify.Rule),
	}
}

// persistedFile is the on-disk document.
type persistedFile struct {
	Version int             `json:"version"`
	SavedAt time.Time       `json:"savedAt"`
	Rules   []persistedRule `json:"rules"`
}

type persistedRule struct {
	Pattern   string    `json:"pattern"`
	IsRegex   bool      `json:"isRegex"`
	Strategy  string    `json:"strategy"`
	Reason    string    `json:"reason"`
	Source    string    `json:"source"`
	Priority  string    `json:"priority"`
	HitCount  int       `json:"hitCount"`
	Timestamp time.Time `json:"timestamp"`
}

// Initialize loads the rule file if present. A missing or corrupt file
// is non-fatal: the store starts empty and the error is returned for the
// caller to log.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.loaded = true

	data, err := os.ReadFile(s.config.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("learn: reading rule file: %w", err)
	}

	var file persistedFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("learn: rule file corrupt, starting empty: %w", err)
	}

	for _, pr := range file.Rules {
		if err := classify.ValidatePattern(pr.Pattern, pr.IsRegex); err != nil {
			continue // skip rules that no longer pass validation
		}
		strategy, _ := classify.ParseStrategy(pr.Strategy)
		rule := &classify.Rule{
			Pattern:   pr.Pattern,
			IsRegex:   pr.IsRegex,
			Strategy:  strategy,
			Reason:    pr.Reason,
			Source:    classify.Source(pr.Source),
			Priority:  classify.Priority(pr.Priority),
			HitCount:  pr.HitCount,
			Timestamp: pr.Timestamp,
		}
		if rule.HitCount < 1 {
			rule.HitCount = 1
		}
		s.rules[rule.Key()] = rule
	}
	s.savedAt = file.SavedAt
	return nil
}

// SaveRule upserts a rule by identity key (pattern, isRegex) and
// schedules a debounced flush. A new rule is stored with hit count 1;
// an existing one has its hit count incremented and timestamp refreshed.
// Invalid patterns are rejected synchronously and never persisted.
func (s *Store) SaveRule(rule classify.Rule) error {
	if err := classify.ValidatePattern(rule.Pattern, rule.IsRegex); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return ErrNotInitialized
	}
	if s.closed {
		return ErrClosed
	}

	if rule.Timestamp.IsZero() {
		rule.Timestamp = time.Now()
	}

	if existing, ok := s.rules[rule.Key()]; ok {
		existing.HitCount++
		existing.Timestamp = rule.Timestamp
		existing.Strategy = rule.Strategy
		existing.Reason = rule.Reason
		existing.Source = rule.Source
		existing.Priority = rule.Priority
	} else {
		rule.HitCount = 1
		s.rules[rule.Key()] = &rule
	}

	s.scheduleFlushLocked()
	return nil
}

// RemoveRule deletes a rule by identity key and schedules a flush.
// Returns false if the rule was not present.
func (s *Store) RemoveRule(pattern string, isRegex bool) bool {
	r := classify.Rule{Pattern: pattern, IsRegex: isRegex}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[r.Key()]; !ok {
		return false
	}
	delete(s.rules, r.Key())
	s.scheduleFlushLocked()
	return true
}

// Rules returns a snapshot of the stored rules.
func (s *Store) Rules() []classify.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]classify.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, *r)
	}
	return out
}

// Flush writes the current rule set to disk immediately, cancelling any
// pending debounced write. A failed write leaves the store dirty so the
// next debounce cycle retries.
func (s *Store) Flush() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	snapshot := s.snapshotLocked()
	s.dirty = false
	s.mu.Unlock()

	err := s.writeFile(snapshot)
	if err != nil {
		s.mu.Lock()
		s.dirty = true
		s.writeFailures++
		s.mu.Unlock()
	} else {
		s.mu.Lock()
		s.flushes++
		s.savedAt = snapshot.SavedAt
		s.mu.Unlock()
	}

	if s.config.OnFlush != nil {
		s.config.OnFlush(err)
	}
	return err
}

// Close flushes any pending write and marks the store closed. Safe to
// call more than once.
func (s *Store) Close() error {
	err := s.Flush()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}

// Stats is a snapshot of persistence statistics.
type Stats struct {
	RuleCount     int
	PendingWrite  bool
	Flushes       int64
	WriteFailures int64
	LastSavedAt   time.Time
}

// Stats returns current persistence statistics.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		RuleCount:     len(s.rules),
		PendingWrite:  s.dirty,
		Flushes:       s.flushes,
		WriteFailures: s.writeFailures,
		LastSavedAt:   s.savedAt,
	}
}

// scheduleFlushLocked marks the store dirty and resets the debounce
// timer: each new save pushes the pending write out rather than queuing
// a second one.
func (s *Store) scheduleFlushLocked() {
	s.dirty = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.config.Debounce, func() {
		_ = s.Flush() // failure recorded in stats, retried next cycle
	})
}

func (s *Store) snapshotLocked() persistedFile {
	file := persistedFile{
		Version: FileVersion,
		SavedAt: time.Now().UTC(),
		Rules:   make([]persistedRule, 0, len(s.rules)),
	}
	for _, r := range s.rules {
		file.Rules = append(file.Rules, persistedRule{
			Pattern:   r.Pattern,
			IsRegex:   r.IsRegex,
			Strategy:  r.Strategy.String(),
			Reason:    r.Reason,
			Source:    string(r.Source),
			Priority:  string(r.Priority),
			HitCount:  r.HitCount,
			Timestamp: r.Timestamp,
		})
	}
	return file
}

// writeFile rotates the previous generation to the backup path, then
// writes the new document via temp file and rename.
func (s *Store) writeFile(file persistedFile) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("learn: encoding rule file: %w", err)
	}

	dir := filepath.Dir(s.config.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("learn: creating rule dir: %w", err)
	}

	tmp := s.config.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("learn: writing rule file: %w", err)
	}

	if _, err := os.Stat(s.config.Path); err == nil {
		if err := os.Rename(s.config.Path, s.config.Path+".bak"); err != nil {
			return fmt.Errorf("learn: rotating backup: %w", err)
		}
	}

	if err := os.Rename(tmp, s.config.Path); err != nil {
		return fmt.Errorf("learn: replacing rule file: %w", err)
	}
	return nil
}
