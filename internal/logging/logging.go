// Package logging routes the standard logger to stderr and, optionally, a size-rotated file.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxSizeMB = 100
	maxBackups       = 5
	maxAgeDays       = 28
)

// Options configures Setup.
type Options struct {
	// File is the log file path. Empty keeps logs on stderr only.
	File string
	// MaxSizeMB is the size at which File is rotated; defaults to 100.
	MaxSizeMB int
	// Prefix is prepended to every line (e.g. "server: ").
	Prefix string
}

// NewWriter returns the writer logs go to for opts and a closer for the rotating file.
// With no File, the writer is stderr and the closer is a no-op.
func NewWriter(opts Options) (io.Writer, io.Closer) {
	if opts.File == "" {
		return os.Stderr, nopCloser{}
	}
	size := opts.MaxSizeMB
	if size <= 0 {
		size = defaultMaxSizeMB
	}
	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    size,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	return io.MultiWriter(os.Stderr, rotator), rotator
}

// Setup points the standard logger at NewWriter(opts). Callers should Close the result on exit.
func Setup(opts Options) io.Closer {
	w, closer := NewWriter(opts)
	log.SetOutput(w)
	log.SetFlags(log.LstdFlags | log.LUTC)
	log.SetPrefix(opts.Prefix)
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
