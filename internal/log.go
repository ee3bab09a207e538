package internal

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
)

// Prefix creates a consistent prefix for all file-based commands to use.
//
// i and n are the zero-based ordinal and expected count.
func Prefix(i, n int, name flags.Filename) string {
	return fmt.Sprintf(`[%d/%d] "%s" - `, i+1, n, TruncateRightWithSuffix(filepath.Base(string(name)), 30, "..."))
}

// NewLogger creates a new logger writing to stderr with Prefix.
func NewLogger(i, n int, name flags.Filename) *log.Logger {
	return log.New(os.Stderr, Prefix(i, n, name), 0)
}

// TruncateRightWithSuffix truncates s to at most size runes, replacing the last few runes with suffix if truncation
// was needed.
func TruncateRightWithSuffix(s string, size int, suffix string) string {
	r := []rune(s)
	if len(r) <= size {
		return s
	}

	sr := []rune(suffix)
	if len(sr) >= size {
		return string(sr[:size])
	}

	return string(r[:size-len(sr)]) + suffix
}
