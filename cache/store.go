package cache

import (
	"container/list"
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/jonwraymond/shellcache/classify"
)

// StoreConfig configures the result store.
type StoreConfig struct {
	// MaxEntries bounds the store size; least-recently-used entries are
	// evicted when exceeded. Default: 1000.
	MaxEntries int

	// SweepInterval is how often the background sweep removes expired
	// entries. Zero disables the sweep; expiry is still enforced lazily
	// on read. Default: 0 (disabled).
	SweepInterval time.Duration
}

// Store is an in-memory command result cache with TTL expiry and LRU
// bounding.
//
// Contract:
// - Concurrency: safe for concurrent use; the lock only guards O(1)
//   map and list operations, never I/O.
// - Expiry: an expired entry is never returned, whether or not the
//   sweep has removed it yet.
// - NEVER strategy: Set is a no-op, the entry is never materialized.
type Store struct {
	config StoreConfig

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used

	hits      int64
	misses    int64
	evictions int64

	stopSweep chan struct{}
	sweepWG   sync.WaitGroup
}

// NewStore creates a new result store.
func NewStore(config StoreConfig) *Store {
	if config.MaxEntries <= 0 {
		config.MaxEntries = 1000
	}

	s := &Store{
		config:  config,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}

	if config.SweepInterval > 0 {
		s.stopSweep = make(chan struct{})
		s.sweepWG.Add(1)
		go s.sweepLoop()
	}

	return s
}

// Get retrieves the cached entry for (command, cwd). Returns (nil, false)
// on miss, expiry, or eviction. Expiry is checked lazily on read.
func (s *Store) Get(_ context.Context, command, cwd string) (*Entry, bool) {
	key := Key(command, cwd)

	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[key]
	if !ok {
		s.misses++
		return nil, false
	}

	entry := elem.Value.(*Entry)
	if entry.Expired(time.Now()) {
		s.removeLocked(key, elem)
		s.misses++
		return nil, false
	}

	s.order.MoveToFront(elem)
	s.hits++
	out := *entry
	return &out, true
}

// Set stores a result under (command, cwd). A StrategyNever tier or a
// non-positive TTL is a no-op: such results are never materialized.
// Storing over an existing key replaces it (last writer wins).
func (s *Store) Set(_ context.Context, command, cwd string, result Result, strategy classify.Strategy, ttl time.Duration) error {
	if err := ValidateCommand(command); err != nil {
		return err
	}
	if strategy == classify.StrategyNever || ttl <= 0 {
		return nil
	}

	now := time.Now()
	entry := &Entry{
		Command:   classify.Normalize(command),
		Cwd:       cwd,
		Result:    result,
		Strategy:  strategy,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	key := Key(command, cwd)

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[key]; ok {
		elem.Value = entry
		s.order.MoveToFront(elem)
		return nil
	}

	s.entries[key] = s.order.PushFront(entry)

	for len(s.entries) > s.config.MaxEntries {
		s.evictOldestLocked()
	}
	return nil
}

// ClearCommand removes all entries whose normalized command equals the
// given command, across all working directories. Returns the count removed.
func (s *Store) ClearCommand(command string) int {
	normalized := classify.Normalize(command)
	return s.clearMatching(func(e *Entry) bool { return e.Command == normalized })
}

// ClearPattern removes all entries whose normalized command matches the
// regex. Returns the count removed and any compile error.
func (s *Store) ClearPattern(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, err
	}
	return s.clearMatching(func(e *Entry) bool { return re.MatchString(e.Command) }), nil
}

// Purge removes every entry. Used by the orchestrator under memory
// pressure. Returns the count removed.
func (s *Store) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	s.entries = make(map[string]*list.Element)
	s.order.Init()
	return n
}

// Stats is a snapshot of store statistics.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
	HitRate   float64
	ByTier    map[string]int
}

// Stats returns current store statistics, including a live-entry
// breakdown by strategy tier.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	byTier := make(map[string]int)
	now := time.Now()
	size := 0
	for _, elem := range s.entries {
		entry := elem.Value.(*Entry)
		if entry.Expired(now) {
			continue
		}
		byTier[entry.Strategy.String()]++
		size++
	}

	stats := Stats{
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
		Size:      size,
		ByTier:    byTier,
	}
	if total := s.hits + s.misses; total > 0 {
		stats.HitRate = float64(s.hits) / float64(total)
	}
	return stats
}

// Close stops the background sweep, if running.
func (s *Store) Close() {
	if s.stopSweep != nil {
		close(s.stopSweep)
		s.sweepWG.Wait()
		s.stopSweep = nil
	}
}

func (s *Store) clearMatching(match func(*Entry) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, elem := range s.entries {
		if match(elem.Value.(*Entry)) {
			s.removeLocked(key, elem)
			removed++
		}
	}
	return removed
}

func (s *Store) evictOldestLocked() {
	back := s.order.Back()
	if back == nil {
		return
	}
	entry := back.Value.(*Entry)
	delete(s.entries, Key(entry.Command, entry.Cwd))
	s.order.Remove(back)
	s.evictions++
}

func (s *Store) removeLocked(key string, elem *list.Element) {
	delete(s.entries, key)
	s.order.Remove(elem)
}

func (s *Store) sweepLoop() {
	defer s.sweepWG.Done()

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopSweep:
			return
		case <-ticker.C:
			s.sweepExpired()
		}
	}
}

func (s *Store) sweepExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, elem := range s.entries {
		if elem.Value.(*Entry).Expired(now) {
			s.removeLocked(key, elem)
		}
	}
}
