package guard

import (
	"runtime"
	"sync"
	"time"
)

// PressureLevel classifies current heap pressure.
type PressureLevel int

const (
	// PressureNormal means heap usage is below the warning threshold.
	PressureNormal PressureLevel = iota
	// PressureHigh means the cache should stop admitting new entries.
	PressureHigh
	// PressureCritical means the cache should shed entries now.
	PressureCritical
)

// String returns the string representation of the pressure level.
func (p PressureLevel) String() string {
	switch p {
	case PressureNormal:
		return "normal"
	case PressureHigh:
		return "high"
	case PressureCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MemoryConfig configures the memory monitor.
type MemoryConfig struct {
	// MaxHeapBytes is the heap budget pressure is measured against.
	// Default: 512 MiB.
	MaxHeapBytes uint64

	// HighThreshold is the heap fraction above which pressure is High.
	// Default: 0.8.
	HighThreshold float64

	// CriticalThreshold is the heap fraction above which pressure is
	// Critical. Default: 0.95.
	CriticalThreshold float64

	// CheckInterval caps how often runtime.ReadMemStats is consulted;
	// readings inside the interval reuse the last sample. Default: 5s.
	CheckInterval time.Duration
}

// MemorySample is one pressure reading.
type MemorySample struct {
	Level      PressureLevel
	HeapBytes  uint64
	BudgetUsed float64 // HeapBytes / MaxHeapBytes
	TakenAt    time.Time
}

// MemoryMonitor reports heap pressure so the orchestrator can stop
// caching or purge under load. ReadMemStats is expensive, so samples
// are cached for CheckInterval.
type MemoryMonitor struct {
	config MemoryConfig

	mu   sync.Mutex
	last MemorySample
}

// NewMemoryMonitor creates a memory monitor.
func NewMemoryMonitor(config MemoryConfig) *MemoryMonitor {
	if config.MaxHeapBytes == 0 {
		config.MaxHeapBytes = 512 << 20
	}
	if config.HighThreshold <= 0 {
		config.HighThreshold = 0.8
	}
	if config.CriticalThreshold <= 0 {
		config.CriticalThreshold = 0.95
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = 5 * time.Second
	}
	return &MemoryMonitor{config: config}
}

// Sample returns the current pressure reading, reusing the cached
// sample when taken within CheckInterval.
func (m *MemoryMonitor) Sample() MemorySample {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if !m.last.TakenAt.IsZero() && now.Sub(m.last.TakenAt) < m.config.CheckInterval {
		return m.last
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	used := float64(stats.HeapAlloc) / float64(m.config.MaxHeapBytes)
	level := PressureNormal
	switch {
	case used >= m.config.CriticalThreshold:
		level = PressureCritical
	case used >= m.config.HighThreshold:
		level = PressureHigh
	}

	m.last = MemorySample{
		Level:      level,
		HeapBytes:  stats.HeapAlloc,
		BudgetUsed: used,
		TakenAt:    now,
	}
	return m.last
}

// Level is a convenience wrapper returning just the pressure level.
func (m *MemoryMonitor) Level() PressureLevel {
	return m.Sample().Level
}
