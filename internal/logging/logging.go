// Package logging builds the process loggers.
//
// Every component takes a *log.Logger with a bracketed prefix ("[sync] ",
// "[daemon] ", ...). They all share one writer: stderr, plus a rotating log
// file when one is configured.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/marksync/marksync/internal/config"
)

// Sink is the shared destination of all component loggers.
type Sink struct {
	w    io.Writer
	file *lumberjack.Logger
}

// NewSink creates a sink writing to stderr and, if cfg.File is set, to a
// rotating file.
func NewSink(cfg config.Logging) (*Sink, error) {
	return newSink(os.Stderr, cfg)
}

func newSink(console io.Writer, cfg config.Logging) (*Sink, error) {
	if cfg.File == "" {
		return &Sink{w: console}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, err
	}
	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	return &Sink{w: io.MultiWriter(console, file), file: file}, nil
}

// Logger returns a logger writing to the sink with the given component
// prefix, e.g. "sync" gives "[sync] ".
func (s *Sink) Logger(component string) *log.Logger {
	return log.New(s.w, "["+component+"] ", log.LstdFlags)
}

// Close closes the log file, if any.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
