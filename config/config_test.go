package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleDoc = `
service:
  name: shellcache
  version: "1.2.0"
cache:
  maxEntries: 500
  sweepInterval: 2m
analyze:
  neverThreshold: 0.6
duplicates:
  window: 5s
  maxHistory: 10
  signalThreshold: 2
rules:
  path: /var/lib/shellcache/rules.json
  debounce: 1s
guard:
  maxFailures: 3
  resetTimeout: 30s
  maxConcurrent: 8
  commandTimeout: 2m
telemetry:
  logging:
    enabled: true
    level: info
`

func TestParse_FullDocument(t *testing.T) {
	f, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	store := f.StoreConfig()
	if store.MaxEntries != 500 {
		t.Errorf("MaxEntries = %d, want 500", store.MaxEntries)
	}
	if store.SweepInterval != 2*time.Minute {
		t.Errorf("SweepInterval = %v, want 2m", store.SweepInterval)
	}

	if got := f.AnalyzerConfig().NeverThreshold; got != 0.6 {
		t.Errorf("NeverThreshold = %v, want 0.6", got)
	}

	det := f.DetectorConfig()
	if det.Window != 5*time.Second || det.SignalThreshold != 2 {
		t.Errorf("detector config = %+v", det)
	}

	lc := f.LearnConfig()
	if lc.Path != "/var/lib/shellcache/rules.json" || lc.Debounce != time.Second {
		t.Errorf("learn config = %+v", lc)
	}

	oc := f.ObserveConfig()
	if oc.ServiceName != "shellcache" || oc.Version != "1.2.0" {
		t.Errorf("observe config = %+v", oc)
	}
	if !oc.Logging.Enabled || oc.Logging.Level != "info" {
		t.Errorf("logging config = %+v", oc.Logging)
	}
	if err := oc.Validate(); err != nil {
		t.Errorf("observe config invalid: %v", err)
	}

	if f.BuildGuard() == nil {
		t.Error("BuildGuard returned nil")
	}
}

func TestParse_EmptyDocumentUsesDefaults(t *testing.T) {
	f, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if f.StoreConfig().MaxEntries != 0 {
		t.Error("empty doc should leave zero values for constructors to default")
	}
	if f.ObserveConfig().ServiceName != "shellcache" {
		t.Error("service name should default")
	}
}

func TestParse_UnknownKeyRejected(t *testing.T) {
	_, err := Parse([]byte("cache:\n  maxEntrys: 5\n"))
	if err == nil {
		t.Error("unknown key should be rejected")
	}
}

func TestParse_InvalidDuration(t *testing.T) {
	_, err := Parse([]byte("cache:\n  sweepInterval: fortnight\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("err = %v, want invalid duration", err)
	}
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("SHELLCACHE_RULES", "/tmp/rules.json")

	f, err := Parse([]byte("rules:\n  path: ${SHELLCACHE_RULES}\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if f.Rules.Path != "/tmp/rules.json" {
		t.Errorf("path = %q", f.Rules.Path)
	}
}

func TestParse_MissingEnvVarErrors(t *testing.T) {
	_, err := Parse([]byte("rules:\n  path: ${SHELLCACHE_DEFINITELY_UNSET_VAR}\n"))
	if err == nil || !strings.Contains(err.Error(), "SHELLCACHE_DEFINITELY_UNSET_VAR") {
		t.Errorf("err = %v, want missing env var error naming the variable", err)
	}
}

func TestParse_DollarEscape(t *testing.T) {
	f, err := Parse([]byte("service:\n  name: cost$$center\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if f.Service.Name != "cost$center" {
		t.Errorf("name = %q, want literal dollar", f.Service.Name)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shellcache.yaml")
	if err := os.WriteFile(path, []byte(sampleDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err != nil {
		t.Errorf("Load failed: %v", err)
	}

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
