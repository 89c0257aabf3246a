package learn

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonwraymond/shellcache/classify"
)

func newTestStore(t *testing.T, debounce time.Duration) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.json")
	s := NewStore(Config{Path: path, Debounce: debounce})
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return s, path
}

func TestInitialize_MissingFileIsNonFatal(t *testing.T) {
	s := NewStore(Config{Path: filepath.Join(t.TempDir(), "absent.json")})
	if err := s.Initialize(); err != nil {
		t.Errorf("missing file should not error, got: %v", err)
	}
	if len(s.Rules()) != 0 {
		t.Error("store should start empty")
	}
}

func TestInitialize_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(Config{Path: path})
	err := s.Initialize()
	if err == nil {
		t.Error("corrupt file should surface an error for logging")
	}
	if len(s.Rules()) != 0 {
		t.Error("store must start empty on corrupt file")
	}

	// The store remains usable.
	if err := s.SaveRule(classify.Rule{Pattern: "pwd", Strategy: classify.StrategyShort}); err != nil {
		t.Errorf("SaveRule after corrupt load failed: %v", err)
	}
}

func TestSaveRule_RequiresInitialize(t *testing.T) {
	s := NewStore(Config{Path: filepath.Join(t.TempDir(), "rules.json")})
	err := s.SaveRule(classify.Rule{Pattern: "pwd", Strategy: classify.StrategyShort})
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("err = %v, want ErrNotInitialized", err)
	}
}

func TestSaveRule_RejectsInvalidPattern(t *testing.T) {
	s, _ := newTestStore(t, time.Second)

	err := s.SaveRule(classify.Rule{Pattern: `([`, IsRegex: true, Strategy: classify.StrategyNever})
	if !errors.Is(err, classify.ErrInvalidPattern) {
		t.Errorf("err = %v, want ErrInvalidPattern", err)
	}
	if len(s.Rules()) != 0 {
		t.Error("invalid rule must not be stored")
	}
}

func TestSaveRule_UpsertIncrementsHitCount(t *testing.T) {
	s, _ := newTestStore(t, time.Second)
	rule := classify.Rule{Pattern: "pwd", Strategy: classify.StrategyShort, Source: classify.SourceUser}

	if err := s.SaveRule(rule); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveRule(rule); err != nil {
		t.Fatal(err)
	}

	rules := s.Rules()
	if len(rules) != 1 {
		t.Fatalf("rule count = %d, want 1 (upsert, not two entries)", len(rules))
	}
	if rules[0].HitCount != 2 {
		t.Errorf("hit count = %d, want 2", rules[0].HitCount)
	}
}

func TestPersistence_RestartRoundTrip(t *testing.T) {
	s, path := newTestStore(t, 10*time.Millisecond)

	rule := classify.Rule{
		Pattern:  "pwd",
		Strategy: classify.StrategyShort,
		Source:   classify.SourceUser,
		Priority: classify.PriorityHigh,
		Reason:   "working directory is stable per session",
	}
	if err := s.SaveRule(rule); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveRule(rule); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Fresh instance pointed at the same file.
	restarted := NewStore(Config{Path: path})
	if err := restarted.Initialize(); err != nil {
		t.Fatalf("re-Initialize failed: %v", err)
	}

	rules := restarted.Rules()
	if len(rules) != 1 {
		t.Fatalf("rule count after restart = %d, want 1", len(rules))
	}
	got := rules[0]
	if got.Pattern != "pwd" || got.Strategy != classify.StrategyShort {
		t.Errorf("rule = %+v", got)
	}
	if got.HitCount != 2 {
		t.Errorf("hit count after restart = %d, want 2 (preserved)", got.HitCount)
	}
	if got.Source != classify.SourceUser || got.Priority != classify.PriorityHigh {
		t.Errorf("source/priority not preserved: %+v", got)
	}
}

func TestPersistence_DebouncedFlush(t *testing.T) {
	s, path := newTestStore(t, 60*time.Millisecond)
	defer s.Close()

	// A burst of saves inside the window must coalesce into one write.
	for i := 0; i < 10; i++ {
		if err := s.SaveRule(classify.Rule{Pattern: "pwd", Strategy: classify.StrategyShort}); err != nil {
			t.Fatal(err)
		}
	}

	// Not yet on disk.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file should not exist before the debounce window elapses")
	}

	time.Sleep(150 * time.Millisecond)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file should exist after the debounce window: %v", err)
	}
	if stats := s.Stats(); stats.Flushes != 1 {
		t.Errorf("flushes = %d, want 1 (coalesced)", stats.Flushes)
	}
}

func TestPersistence_CloseFlushesPending(t *testing.T) {
	s, path := newTestStore(t, time.Hour) // debounce would never fire

	if err := s.SaveRule(classify.Rule{Pattern: "pwd", Strategy: classify.StrategyShort}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("rule file missing after Close: %v", err)
	}

	var file persistedFile
	if err := json.Unmarshal(data, &file); err != nil {
		t.Fatalf("rule file not valid JSON: %v", err)
	}
	if file.Version != FileVersion {
		t.Errorf("version = %d, want %d", file.Version, FileVersion)
	}
	if len(file.Rules) != 1 || file.Rules[0].Pattern != "pwd" {
		t.Errorf("rules = %+v", file.Rules)
	}
	if file.Rules[0].Strategy != "SHORT" {
		t.Errorf("strategy = %q, want SHORT", file.Rules[0].Strategy)
	}
}

func TestPersistence_BackupRotation(t *testing.T) {
	s, path := newTestStore(t, time.Hour)

	if err := s.SaveRule(classify.Rule{Pattern: "pwd", Strategy: classify.StrategyShort}); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}

	if err := s.SaveRule(classify.Rule{Pattern: "whoami", Strategy: classify.StrategyShort}); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}

	backup, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("backup missing after second flush: %v", err)
	}

	var prev persistedFile
	if err := json.Unmarshal(backup, &prev); err != nil {
		t.Fatalf("backup not valid JSON: %v", err)
	}
	if len(prev.Rules) != 1 {
		t.Errorf("backup should hold the previous generation, got %d rules", len(prev.Rules))
	}
}

func TestRemoveRule(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	defer s.Close()

	if err := s.SaveRule(classify.Rule{Pattern: "pwd", Strategy: classify.StrategyShort}); err != nil {
		t.Fatal(err)
	}

	if !s.RemoveRule("pwd", false) {
		t.Error("RemoveRule should return true for stored rule")
	}
	if s.RemoveRule("pwd", false) {
		t.Error("RemoveRule should return false for absent rule")
	}
	if len(s.Rules()) != 0 {
		t.Error("rule should be gone")
	}
}

func TestInitialize_SkipsInvalidPersistedRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	doc := `{"version":1,"savedAt":"2024-06-01T00:00:00Z","rules":[
		{"pattern":"pwd","isRegex":false,"strategy":"SHORT","source":"user","priority":"high","hitCount":3,"timestamp":"2024-06-01T00:00:00Z"},
		{"pattern":"([","isRegex":true,"strategy":"NEVER","source":"auto-detect","priority":"high","hitCount":1,"timestamp":"2024-06-01T00:00:00Z"}
	]}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(Config{Path: path})
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	rules := s.Rules()
	if len(rules) != 1 {
		t.Fatalf("rule count = %d, want 1 (invalid regex skipped)", len(rules))
	}
	if rules[0].Pattern != "pwd" || rules[0].HitCount != 3 {
		t.Errorf("rule = %+v", rules[0])
	}
}

func TestStats(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	defer s.Close()

	if err := s.SaveRule(classify.Rule{Pattern: "pwd", Strategy: classify.StrategyShort}); err != nil {
		t.Fatal(err)
	}

	stats := s.Stats()
	if stats.RuleCount != 1 {
		t.Errorf("rule count = %d, want 1", stats.RuleCount)
	}
	if !stats.PendingWrite {
		t.Error("PendingWrite should be true before flush")
	}

	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	stats = s.Stats()
	if stats.PendingWrite {
		t.Error("PendingWrite should be false after flush")
	}
	if stats.Flushes != 1 {
		t.Errorf("flushes = %d, want 1", stats.Flushes)
	}
	if stats.LastSavedAt.IsZero() {
		t.Error("LastSavedAt should be set after flush")
	}
}

func TestSaveRule_AfterClose(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	err := s.SaveRule(classify.Rule{Pattern: "pwd", Strategy: classify.StrategyShort})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestFlush_NotifiesOutcome(t *testing.T) {
	var outcomes []error
	path := filepath.Join(t.TempDir(), "rules.json")
	s := NewStore(Config{
		Path:    path,
		OnFlush: func(err error) { outcomes = append(outcomes, err) },
	})
	if err := s.Initialize(); err != nil {
		t.Fatal(err)
	}

	if err := s.SaveRule(classify.Rule{Pattern: "pwd", Strategy: classify.StrategyShort}); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}

	if len(outcomes) != 1 || outcomes[0] != nil {
		t.Errorf("outcomes = %v, want one nil", outcomes)
	}

	// No pending write, no attempt, no notification.
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 1 {
		t.Errorf("outcomes = %d, want still 1", len(outcomes))
	}
}

func TestFlush_NotifiesFailure(t *testing.T) {
	// A regular file where the rule directory should be makes the write
	// path fail.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	var outcomes []error
	s := NewStore(Config{
		Path:    filepath.Join(blocker, "rules.json"),
		OnFlush: func(err error) { outcomes = append(outcomes, err) },
	})
	if err := s.Initialize(); err == nil {
		t.Fatal("Initialize should fail reading under a regular file")
	}

	if err := s.SaveRule(classify.Rule{Pattern: "pwd", Strategy: classify.StrategyShort}); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(); err == nil {
		t.Fatal("Flush should fail")
	}

	if len(outcomes) != 1 || outcomes[0] == nil {
		t.Errorf("outcomes = %v, want one non-nil error", outcomes)
	}
	if !s.Stats().PendingWrite {
		t.Error("failed flush must leave the store dirty for retry")
	}
}
