package main

import (
	"context"
	"errors"
	"io"
	log "log/slog"
	"os"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

// newLogger logs to the terminal and, when file is set, to a rotating JSON
// file as well.
func newLogger(level, file string) (*log.Logger, io.Closer) {
	lvl, ok := logLevelMap[level]
	if !ok {
		lvl = log.LevelInfo
	}

	term := tint.NewHandler(os.Stdout, &tint.Options{Level: lvl})
	if file == "" {
		return log.New(term), io.NopCloser(nil)
	}

	w := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    32, // MB
		MaxBackups: 3,
		MaxAge:     14,
		Compress:   true,
	}
	js := log.NewJSONHandler(w, &log.HandlerOptions{Level: lvl})
	return log.New(fanout{term, js}), w
}

// fanout sends every record to all handlers.
type fanout []log.Handler

func (f fanout) Enabled(ctx context.Context, l log.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r log.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []log.Attr) log.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) log.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
