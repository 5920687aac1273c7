// Package logging configures the standard logger: stderr plus an optional
// rotating file, and gated debug output.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var (
	verbose    atomic.Bool
	inputDebug atomic.Bool
)

// Options controls Setup
type Options struct {
	Verbose    bool
	InputDebug bool
	// File enables rotation into this path when set
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup configures the global logger. The returned closer flushes the
// rotating file; it is a no-op when no file is configured.
func Setup(opts Options) io.Closer {
	verbose.Store(opts.Verbose)
	inputDebug.Store(opts.InputDebug)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if opts.File == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		log.Printf("[WARN] logging: cannot create log directory: %v", err)
		log.SetOutput(os.Stderr)
		return nopCloser{}
	}

	w := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    orDefault(opts.MaxSizeMB, 20),
		MaxBackups: orDefault(opts.MaxBackups, 5),
		MaxAge:     orDefault(opts.MaxAgeDays, 7),
		Compress:   false,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, w))
	return w
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// SetVerbose toggles [DEBUG] output
func SetVerbose(v bool) {
	verbose.Store(v)
}

// Verbose reports whether [DEBUG] output is enabled
func Verbose() bool {
	return verbose.Load()
}

// SetInputDebug toggles per-event input tracing
func SetInputDebug(v bool) {
	inputDebug.Store(v)
}

// Debugf logs with the [DEBUG] tag when verbose output is enabled
func Debugf(format string, args ...any) {
	if verbose.Load() {
		log.Printf("[DEBUG] "+format, args...)
	}
}

// InputDebugf traces remote input handling when input debugging is enabled
func InputDebugf(format string, args ...any) {
	if inputDebug.Load() {
		log.Printf("[DEBUG] input: "+format, args...)
	}
}
