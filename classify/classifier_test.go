package classify

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestClassify_BuiltinNever(t *testing.T) {
	c := NewClassifier()

	for _, cmd := range []string{"git status", "ls -la", "docker ps", "ps aux", "df -h", "date"} {
		d := c.Classify(cmd)
		if d.Strategy != StrategyNever {
			t.Errorf("Classify(%q) strategy = %v, want NEVER", cmd, d.Strategy)
		}
		if d.TTL != 0 {
			t.Errorf("Classify(%q) TTL = %v, want 0", cmd, d.TTL)
		}
	}
}

func TestClassify_BuiltinPermanent(t *testing.T) {
	c := NewClassifier()

	d := c.Classify("node --version")
	if d.Strategy != StrategyPermanent {
		t.Fatalf("strategy = %v, want PERMANENT", d.Strategy)
	}
	if d.TTL != 60*time.Minute {
		t.Errorf("TTL = %v, want 1h", d.TTL)
	}
}

func TestClassify_DefaultFallback(t *testing.T) {
	c := NewClassifier()

	d := c.Classify("some-unknown-binary --flag")
	if d.Strategy != StrategyMedium {
		t.Errorf("strategy = %v, want MEDIUM", d.Strategy)
	}
	if d.TTL != 5*time.Minute {
		t.Errorf("TTL = %v, want 5m", d.TTL)
	}
	if d.Reason == "" {
		t.Error("expected non-empty reason for default fallback")
	}
}

func TestClassify_Idempotent(t *testing.T) {
	c := NewClassifier()
	if err := c.AddRule(Rule{Pattern: "make build", Strategy: StrategyLong, Source: SourceUser}, PriorityLow); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	first := c.Classify("make build")
	for i := 0; i < 5; i++ {
		if got := c.Classify("make build"); got != first {
			t.Fatalf("Classify not idempotent: %+v != %+v", got, first)
		}
	}
}

func TestAddRule_OverridesBuiltin(t *testing.T) {
	c := NewClassifier()

	// docker ps is NEVER by the built-in table
	if d := c.Classify("docker ps"); d.Strategy != StrategyNever {
		t.Fatalf("builtin strategy = %v, want NEVER", d.Strategy)
	}

	err := c.AddRule(Rule{
		Pattern:  "docker ps",
		Strategy: StrategyShort,
		Reason:   "operator override",
		Source:   SourceUser,
	}, PriorityHigh)
	if err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	d := c.Classify("docker ps")
	if d.Strategy != StrategyShort {
		t.Errorf("strategy = %v, want SHORT after user rule", d.Strategy)
	}
	if !strings.Contains(d.Reason, "operator override") {
		t.Errorf("reason %q should cite the added rule", d.Reason)
	}
}

func TestAddRule_AutoDetectNever(t *testing.T) {
	c := NewClassifier()

	err := c.AddRule(Rule{
		Pattern:  "git status",
		Strategy: StrategyNever,
		Reason:   "duplicate output detected",
		Source:   SourceAutoDetect,
	}, PriorityHigh)
	if err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	d := c.Classify("git status")
	if d.Strategy != StrategyNever {
		t.Errorf("strategy = %v, want NEVER", d.Strategy)
	}
	if !strings.Contains(d.Reason, "duplicate output detected") {
		t.Errorf("reason %q should cite the auto-detect rule", d.Reason)
	}
}

func TestClassify_HighPriorityBeatsLow(t *testing.T) {
	// Insertion order must not matter: run both orders.
	orders := [][2]Priority{
		{PriorityLow, PriorityHigh},
		{PriorityHigh, PriorityLow},
	}
	for _, order := range orders {
		c := NewClassifier()
		strategies := map[Priority]Strategy{
			PriorityLow:  StrategyLong,
			PriorityHigh: StrategyNever,
		}
		for _, pri := range order {
			// Distinct identities: low rule is a regex for the same command.
			rule := Rule{Pattern: "npm run dev", Strategy: strategies[pri], Source: SourceUser}
			if pri == PriorityLow {
				rule = Rule{Pattern: `^npm run \w+$`, IsRegex: true, Strategy: strategies[pri], Source: SourceHeuristic}
			}
			if err := c.AddRule(rule, pri); err != nil {
				t.Fatalf("AddRule(%s) failed: %v", pri, err)
			}
		}

		d := c.Classify("npm run dev")
		if d.Strategy != StrategyNever {
			t.Errorf("order %v: strategy = %v, want NEVER (high priority wins)", order, d.Strategy)
		}
	}
}

func TestClassify_RegexRecencyOrder(t *testing.T) {
	c := NewClassifier()

	older := Rule{Pattern: `^git .*`, IsRegex: true, Strategy: StrategyLong, Source: SourceUser,
		Timestamp: time.Now().Add(-time.Hour)}
	newer := Rule{Pattern: `^git s.*`, IsRegex: true, Strategy: StrategyNever, Source: SourceUser,
		Timestamp: time.Now()}

	if err := c.AddRule(older, PriorityHigh); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}
	if err := c.AddRule(newer, PriorityHigh); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	// Both regexes match; the more recent one must win.
	if d := c.Classify("git show HEAD"); d.Strategy != StrategyNever {
		t.Errorf("strategy = %v, want NEVER from the newer rule", d.Strategy)
	}
}

func TestAddRule_UpsertIncrementsHitCount(t *testing.T) {
	c := NewClassifier()
	rule := Rule{Pattern: "pwd", Strategy: StrategyShort, Source: SourceUser}

	if err := c.AddRule(rule, PriorityHigh); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}
	if err := c.AddRule(rule, PriorityHigh); err != nil {
		t.Fatalf("AddRule (upsert) failed: %v", err)
	}

	rules := c.Rules()
	if len(rules) != 1 {
		t.Fatalf("rule count = %d, want 1 (upsert, not duplicate)", len(rules))
	}
	if rules[0].HitCount != 2 {
		t.Errorf("hit count = %d, want 2", rules[0].HitCount)
	}
}

func TestAddRule_RejectsInvalidRegex(t *testing.T) {
	c := NewClassifier()

	err := c.AddRule(Rule{Pattern: `([a-z`, IsRegex: true, Strategy: StrategyNever}, PriorityHigh)
	if !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("err = %v, want ErrInvalidPattern", err)
	}
	if len(c.Rules()) != 0 {
		t.Error("invalid rule must not be installed")
	}
}

func TestAddRule_RejectsComplexRegex(t *testing.T) {
	c := NewClassifier()

	cases := []string{
		`(a+)+b`, // nested quantified group
		`a*b*c*d*e*f*g*h*i*`, // too many quantifiers
	}
	for _, pattern := range cases {
		err := c.AddRule(Rule{Pattern: pattern, IsRegex: true, Strategy: StrategyNever}, PriorityHigh)
		if !errors.Is(err, ErrPatternTooComplex) {
			t.Errorf("AddRule(%q) err = %v, want ErrPatternTooComplex", pattern, err)
		}
	}
}

func TestAddRule_RejectsOverlongPattern(t *testing.T) {
	c := NewClassifier()

	long := strings.Repeat("x", MaxPatternLength+1)
	err := c.AddRule(Rule{Pattern: long, Strategy: StrategyNever}, PriorityHigh)
	if !errors.Is(err, ErrPatternTooLong) {
		t.Errorf("err = %v, want ErrPatternTooLong", err)
	}
}

func TestRemoveRule(t *testing.T) {
	c := NewClassifier()
	if err := c.AddRule(Rule{Pattern: "pwd", Strategy: StrategyShort}, PriorityLow); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	if !c.RemoveRule("pwd", false) {
		t.Error("RemoveRule should return true for existing rule")
	}
	if c.RemoveRule("pwd", false) {
		t.Error("RemoveRule should return false for absent rule")
	}
}

func TestClassify_CaseInsensitiveExactMatch(t *testing.T) {
	c := NewClassifier()
	if err := c.AddRule(Rule{Pattern: "Git Status", Strategy: StrategyNever}, PriorityHigh); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	if d := c.Classify("  git   STATUS  "); d.Strategy != StrategyNever {
		t.Errorf("strategy = %v, want NEVER via case-insensitive match", d.Strategy)
	}
}

func TestExplain(t *testing.T) {
	c := NewClassifier()
	out := c.Explain("git status")

	for _, want := range []string{"git status", "NEVER", "reason:"} {
		if !strings.Contains(out, want) {
			t.Errorf("Explain output missing %q:\n%s", want, out)
		}
	}
}

func TestClassifier_ConcurrentAccess(t *testing.T) {
	c := NewClassifier()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = c.AddRule(Rule{Pattern: "pwd", Strategy: StrategyShort}, PriorityHigh)
		}()
		go func() {
			defer wg.Done()
			_ = c.Classify("pwd")
			_ = c.Rules()
		}()
	}
	wg.Wait()
}

func TestStrategyTTLs(t *testing.T) {
	cases := map[Strategy]time.Duration{
		StrategyNever:     0,
		StrategyShort:     30 * time.Second,
		StrategyMedium:    5 * time.Minute,
		StrategyLong:      30 * time.Minute,
		StrategyPermanent: 60 * time.Minute,
	}
	for strategy, want := range cases {
		if got := strategy.TTL(); got != want {
			t.Errorf("%v.TTL() = %v, want %v", strategy, got, want)
		}
	}
}

func TestParseStrategy_RoundTrip(t *testing.T) {
	for _, s := range []Strategy{StrategyNever, StrategyShort, StrategyMedium, StrategyLong, StrategyPermanent} {
		got, ok := ParseStrategy(s.String())
		if !ok || got != s {
			t.Errorf("ParseStrategy(%q) = %v, %v", s.String(), got, ok)
		}
	}
	if _, ok := ParseStrategy("bogus"); ok {
		t.Error("ParseStrategy should reject unknown names")
	}
}

func TestClassify_BuiltinTierTable(t *testing.T) {
	c := NewClassifier()

	cases := []struct {
		command string
		want    Strategy
	}{
		{"git status", StrategyNever},
		{"ls", StrategyNever},
		{"docker ps", StrategyNever},
		{"ps aux", StrategyNever},
		{"df -h", StrategyNever},
		{"date", StrategyNever},
		{"tail -f app.log", StrategyNever},
		{"pwd", StrategyShort},
		{"whoami", StrategyShort},
		{"which go", StrategyShort},
		{"cat package.json", StrategyMedium},
		{"git show HEAD", StrategyMedium},
		{"cat README.md", StrategyLong},
		{"git config --list", StrategyLong},
		{"node --version", StrategyPermanent},
		{"uname -a", StrategyPermanent},
		{"make --help", StrategyPermanent},
	}

	for _, tc := range cases {
		if d := c.Classify(tc.command); d.Strategy != tc.want {
			t.Errorf("Classify(%q) = %v, want %v", tc.command, d.Strategy, tc.want)
		}
	}
}

func TestClassify_FileArgumentPrefixes(t *testing.T) {
	c := NewClassifier()

	// Prefixes like "cat readme" must also cover the file-extension form.
	for _, cmd := range []string{"cat README.md", "cat readme.txt", "cat LICENSE.txt", "cat CHANGELOG.md"} {
		if d := c.Classify(cmd); d.Strategy != StrategyLong {
			t.Errorf("Classify(%q) = %v, want LONG", cmd, d.Strategy)
		}
	}

	// An unrelated continuation is not a prefix match.
	if d := c.Classify("cat readmeish-notes"); d.Strategy != StrategyMedium {
		t.Errorf("Classify(%q) = %v, want MEDIUM default", "cat readmeish-notes", d.Strategy)
	}
}

func TestAddRule_LiteralPatternIsNormalized(t *testing.T) {
	c := NewClassifier()

	// Doubled whitespace and casing in a saved pattern must not produce
	// a rule that matches nothing.
	err := c.AddRule(Rule{
		Pattern:  "Deploy  Prod",
		Strategy: StrategyNever,
		Source:   SourceUser,
	}, PriorityHigh)
	if err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	for _, cmd := range []string{"deploy prod", "deploy  prod", "DEPLOY PROD"} {
		if d := c.Classify(cmd); d.Strategy != StrategyNever {
			t.Errorf("Classify(%q) = %v, want NEVER", cmd, d.Strategy)
		}
	}
}
