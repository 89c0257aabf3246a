package cache

import (
	"errors"
	"strings"
	"time"

	"github.com/jonwraymond/shellcache/classify"
)

// MaxCommandLength is the maximum allowed length for a cached command.
const MaxCommandLength = 512

// Sentinel errors for cache operations.
var (
	ErrInvalidCommand = errors.New("cache: command is invalid")
	ErrCommandTooLong = errors.New("cache: command exceeds max length")
)

// Result is a captured command execution outcome.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Entry is a stored cache entry.
type Entry struct {
	Command   string // normalized command
	Cwd       string
	Result    Result
	Strategy  classify.Strategy
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry has passed its expiry.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// ValidateCommand checks if a command is usable as a cache key.
func ValidateCommand(command string) error {
	if strings.TrimSpace(command) == "" {
		return ErrInvalidCommand
	}
	if len(command) > MaxCommandLength {
		return ErrCommandTooLong
	}
	if strings.ContainsAny(command, "\n\r") {
		return ErrInvalidCommand
	}
	return nil
}
