package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chainguard-dev/clog"
	"github.com/gosimple/slug"
	slogmulti "github.com/samber/slog-multi"
)

// SetupFileLogging tees the context logger into a JSON lines file named after
// the infrastructure under directory. Logging to the file is best effort: on
// failure ctx is returned unchanged. The returned func closes the file.
func SetupFileLogging(ctx context.Context, directory, infrastructureID string, level slog.Level) (context.Context, func()) {
	if directory == "" {
		return ctx, func() {}
	}

	if err := os.MkdirAll(directory, 0o755); err != nil {
		clog.WarnContext(ctx, "failed to create log directory", "path", directory, "error", err.Error())
		return ctx, func() {}
	}

	name := slug.Make(infrastructureID)
	if name == "" {
		name = "default"
	}
	path := filepath.Join(directory, fmt.Sprintf("%s.log", name))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		clog.WarnContext(ctx, "failed to open log file", "path", path, "error", err.Error())
		return ctx, func() {}
	}

	file := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})
	handler := slogmulti.Fanout(clog.FromContext(ctx).Handler(), file)

	clog.InfoContext(ctx, "logging to file", "path", path)
	ctx = clog.WithLogger(ctx, clog.New(handler))

	return ctx, func() {
		if err := f.Close(); err != nil {
			clog.WarnContext(ctx, "failed to close log file", "path", path, "error", err.Error())
		}
	}
}
