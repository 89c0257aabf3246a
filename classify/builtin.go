package classify

import "strings"

// Built-in command tables. Matching is by normalized command prefix, with
// the longest matching prefix across all tiers winning, so that
// "git status" (never cached) and "git config --list" (long-lived) do not
// shadow each other.
var builtinPrefixes = map[Strategy][]string{
	StrategyNever: {
		"git status", "git diff", "git log", "git fetch", "git pull",
		"ls", "ll", "dir",
		"docker ps", "docker stats", "docker logs",
		"kubectl get", "kubectl logs", "kubectl top",
		"ps", "top", "htop", "pstree",
		"df", "du", "free", "vmstat", "iostat",
		"date", "uptime", "w",
		"tail -f", "tail --follow", "watch",
		"netstat", "ss", "lsof",
		"curl", "wget", "ping",
	},
	StrategyShort: {
		"pwd", "whoami", "which", "whereis", "type",
		"hostname", "id", "groups", "tty",
	},
	StrategyMedium: {
		"cat package.json", "cat go.mod", "cat cargo.toml",
		"git show", "git remote -v", "git branch",
		"head", "wc", "file", "stat",
	},
	StrategyLong: {
		"cat readme", "cat license", "cat changelog",
		"git config --list", "git config -l",
		"man", "env", "printenv",
	},
	StrategyPermanent: {
		"uname", "arch", "nproc", "lscpu",
		"node --version", "go version", "python --version",
	},
}

// Keywords anywhere in the command that mark it as asking for static
// tool metadata.
var permanentKeywords = []string{"--version", "--help", "-version"}

// Normalize canonicalizes a command string for matching and keying:
// trimmed, lowercased, inner whitespace collapsed to single spaces.
func Normalize(command string) string {
	return strings.Join(strings.Fields(strings.ToLower(command)), " ")
}

// builtinLookup resolves a normalized command against the built-in
// tables. Returns ok=false when no prefix or keyword matches.
func builtinLookup(command string) (Strategy, string, bool) {
	for _, kw := range permanentKeywords {
		if strings.Contains(command, kw) {
			return StrategyPermanent, "built-in: version/help output is static (" + kw + ")", true
		}
	}

	best := ""
	var bestStrategy Strategy
	for strategy, prefixes := range builtinPrefixes {
		for _, p := range prefixes {
			if len(p) <= len(best) {
				continue
			}
			if prefixMatches(command, p) {
				best = p
				bestStrategy = strategy
			}
		}
	}
	if best == "" {
		return StrategyMedium, "", false
	}
	return bestStrategy, "built-in rule for " + best, true
}

// prefixMatches reports whether the command falls under a table prefix.
// The boundary after the prefix is a space (next argument) or a dot, so
// file-argument prefixes like "cat readme" cover "cat readme.md".
func prefixMatches(command, prefix string) bool {
	if command == prefix {
		return true
	}
	if !strings.HasPrefix(command, prefix) {
		return false
	}
	next := command[len(prefix)]
	return next == ' ' || next == '.'
}
