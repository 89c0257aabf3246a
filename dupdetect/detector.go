package dupdetect

import (
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"lukechampine.com/blake3"

	"github.com/jonwraymond/shellcache/cache"
	"github.com/jonwraymond/shellcache/classify"
)

// Config configures the duplicate detector.
type Config struct {
	// Window is the span within which two identical results for the same
	// key count as a duplicate. Default: 5 seconds.
	Window time.Duration

	// MaxHistory caps the per-key observation history. Default: 10.
	MaxHistory int

	// SignalThreshold is the duplicate count at which a Signal is
	// emitted. Default: 2 (the second identical observation).
	SignalThreshold int
}

// Signal describes a detected duplicate, delivered to the registered
// callback so the orchestrator can promote a never-cache rule.
type Signal struct {
	Command        string
	Cwd            string
	DuplicateCount int
	TimeSpan       time.Duration
}

// SignalFunc receives duplicate signals. Called synchronously from
// CheckDuplicate, at most once per crossing of the threshold, so the
// caller can invalidate cache entries before the next request is served.
type SignalFunc func(Signal)

type observation struct {
	fingerprint string
	seenAt      time.Time
}

type history struct {
	observations []observation
	duplicates   int
}

// Detector tracks recent result fingerprints per (command, cwd) key.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Memory: history per key is capped and self-pruning; observations
//   older than the window are dropped on each check.
type Detector struct {
	config   Config
	onSignal SignalFunc

	mu        sync.Mutex
	histories map[string]*history
	signaled  int64
	checked   int64
}

// NewDetector creates a new duplicate detector. onSignal may be nil.
func NewDetector(config Config, onSignal SignalFunc) *Detector {
	if config.Window <= 0 {
		config.Window = 5 * time.Second
	}
	if config.MaxHistory <= 0 {
		config.MaxHistory = 10
	}
	if config.SignalThreshold <= 0 {
		config.SignalThreshold = 2
	}
	return &Detector{
		config:    config,
		onSignal:  onSignal,
		histories: make(map[string]*history),
	}
}

// Fingerprint computes the content fingerprint of a result:
// BLAKE3 over stdout, stderr and exit code.
func Fingerprint(result cache.Result) string {
	h := blake3.New(16, nil)
	h.Write([]byte(result.Stdout))
	h.Write([]byte{0})
	h.Write([]byte(result.Stderr))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(result.ExitCode)))
	return hex.EncodeToString(h.Sum(nil))
}

// CheckDuplicate records an observation and reports whether it duplicates
// the most recent prior observation for the same key within the window.
// A signal is emitted when the per-key duplicate count reaches the
// threshold.
func (d *Detector) CheckDuplicate(command, cwd string, result cache.Result) bool {
	fp := Fingerprint(result)
	key := classify.Normalize(command) + "\x00" + cwd
	now := time.Now()

	var signal *Signal

	d.mu.Lock()
	d.checked++

	h, ok := d.histories[key]
	if !ok {
		h = &history{}
		d.histories[key] = h
	}
	h.prune(now, d.config.Window)

	isDup := false
	if n := len(h.observations); n > 0 {
		last := h.observations[n-1]
		if last.fingerprint == fp && now.Sub(last.seenAt) <= d.config.Window {
			isDup = true
		}
	}

	if isDup {
		h.duplicates++
		if h.duplicates+1 == d.config.SignalThreshold && d.onSignal != nil {
			d.signaled++
			first := h.observations[0].seenAt
			signal = &Signal{
				Command:        command,
				Cwd:            cwd,
				DuplicateCount: h.duplicates + 1,
				TimeSpan:       now.Sub(first),
			}
		}
	}

	h.observations = append(h.observations, observation{fingerprint: fp, seenAt: now})
	if len(h.observations) > d.config.MaxHistory {
		h.observations = h.observations[len(h.observations)-d.config.MaxHistory:]
	}
	d.mu.Unlock()

	if signal != nil {
		d.onSignal(*signal)
	}
	return isDup
}

// ClearHistory drops all recorded observations for a command, across all
// working directories.
func (d *Detector) ClearHistory(command string) {
	prefix := classify.Normalize(command) + "\x00"

	d.mu.Lock()
	defer d.mu.Unlock()

	for key := range d.histories {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(d.histories, key)
		}
	}
}

// Stats is a snapshot of detector statistics.
type Stats struct {
	TrackedKeys    int
	Checked        int64
	SignalsEmitted int64
}

// Stats returns current detector statistics.
func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	return Stats{
		TrackedKeys:    len(d.histories),
		Checked:        d.checked,
		SignalsEmitted: d.signaled,
	}
}

// prune drops observations strictly older than the window, keeping one
// seen exactly a window ago so the inclusive elapsed-time check in
// CheckDuplicate still sees it. When the history goes stale entirely,
// the duplicate count resets so a later repeat is evaluated
// independently.
func (h *history) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for ; i < len(h.observations); i++ {
		if !h.observations[i].seenAt.Before(cutoff) {
			break
		}
	}
	if i > 0 {
		h.observations = h.observations[i:]
	}
	if len(h.observations) == 0 {
		h.duplicates = 0
	}
}
