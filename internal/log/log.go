// Package log holds the provider's slog plumbing: call-site preserving
// helpers over the context logger, the tflog bridge, and per-infrastructure
// file logs.
package log

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/chainguard-dev/clog"
)

func Info(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelInfo, msg, args...)
}

func Debug(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelDebug, msg, args...)
}

func Warn(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelWarn, msg, args...)
}

func Error(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelError, msg, args...)
}

// With returns ctx carrying a logger annotated with args.
func With(ctx context.Context, args ...any) context.Context {
	return clog.WithLogger(ctx, clog.FromContext(ctx).With(args...))
}

// WithResource annotates the context logger with the Terraform resource type
// and the infrastructure it operates on.
func WithResource(ctx context.Context, resourceType, infrastructureID string) context.Context {
	return With(ctx, "resource", resourceType, "infrastructure_id", infrastructureID)
}

func log(ctx context.Context, level slog.Level, msg string, args ...any) {
	l := clog.FromContext(ctx)
	if !l.Enabled(ctx, level) {
		return
	}

	var pcs [1]uintptr
	// skip [runtime.Callers, log, the exported helper]
	runtime.Callers(3, pcs[:])

	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = l.Handler().Handle(ctx, r)
}
