// Package logger provides leveled logging to stderr. The level comes from
// the logging section of the config file; warnings from index builds
// (dropped chunks, skipped records) always pass through.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

const (
	levelDebug = iota
	levelInfo
	levelWarn
)

var (
	mu     sync.RWMutex
	level  = levelInfo
	output io.Writer = os.Stderr
)

// SetLevel sets the minimum level: "debug", "info" or "warn". Unknown
// values fall back to info.
func SetLevel(name string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(name) {
	case "debug":
		level = levelDebug
	case "warn":
		level = levelWarn
	default:
		level = levelInfo
	}
}

// SetOutput redirects log output. Defaults to os.Stderr; useful in tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

func Debug(format string, args ...any) {
	logAt(levelDebug, "DEBUG", format, args...)
}

func Info(format string, args ...any) {
	logAt(levelInfo, "INFO", format, args...)
}

func Warn(format string, args ...any) {
	logAt(levelWarn, "WARN", format, args...)
}

func logAt(l int, tag, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if l < level {
		return
	}
	fmt.Fprintf(output, "[%s] "+format+"\n", append([]any{tag}, args...)...)
}
