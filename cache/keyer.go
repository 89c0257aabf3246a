package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/jonwraymond/shellcache/classify"
)

// Key generates the deterministic store key for a (command, cwd) pair.
// The command is normalized first so that trivially different spellings
// of the same invocation share an entry.
//
// Format: cmd:<hash> where hash is the first 16 hex characters of
// SHA-256(normalized command + NUL + cwd).
func Key(command, cwd string) string {
	normalized := classify.Normalize(command)
	h := sha256.Sum256([]byte(normalized + "\x00" + cwd))
	return fmt.Sprintf("cmd:%s", hex.EncodeToString(h[:8]))
}
