package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Options configures the process logger.
type Options struct {
	// Console receives human-readable output; defaults to os.Stderr.
	Console io.Writer
	// File, when set, also receives every record at Debug and above as JSON.
	File    string
	Verbose bool
	Quiet   bool
}

// Level maps the verbosity flags to a console level: Debug with Verbose,
// Warn with Quiet, Info otherwise.
func (o Options) Level() slog.Level {
	switch {
	case o.Verbose:
		return slog.LevelDebug
	case o.Quiet:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// New builds a logger from opts. The returned close function releases the
// log file, if any.
func New(opts Options) (*slog.Logger, func() error, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var handler slog.Handler = tint.NewHandler(console, &tint.Options{
		Level:      opts.Level(),
		TimeFormat: time.TimeOnly,
		NoColor:    !isTerminal(console),
	})

	closeFn := func() error { return nil }
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		jsonHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
		handler = NewMultiHandler(handler, jsonHandler)
		closeFn = f.Close
	}

	return slog.New(handler), closeFn, nil
}

// Setup builds a logger from opts and installs it as the slog default.
func Setup(opts Options) (func() error, error) {
	logger, closeFn, err := New(opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return closeFn, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
