package log

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelpersKeepCallSite(t *testing.T) {
	var buf bytes.Buffer
	ctx := clog.WithLogger(t.Context(), clog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelDebug,
	})))

	ctx = WithResource(ctx, "iaas_instance", "infra-1")
	Info(ctx, "created", "count", 2)

	var rec struct {
		Msg    string `json:"msg"`
		Level  string `json:"level"`
		Count  int    `json:"count"`
		Infra  string `json:"infrastructure_id"`
		Res    string `json:"resource"`
		Source struct {
			File string `json:"file"`
		} `json:"source"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "created", rec.Msg)
	assert.Equal(t, "INFO", rec.Level)
	assert.Equal(t, 2, rec.Count)
	assert.Equal(t, "infra-1", rec.Infra)
	assert.Equal(t, "iaas_instance", rec.Res)
	assert.Equal(t, "log_test.go", filepath.Base(rec.Source.File))
}

func TestHelpersRespectLevel(t *testing.T) {
	var buf bytes.Buffer
	ctx := clog.WithLogger(t.Context(), clog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))
	Debug(ctx, "hidden")
	Info(ctx, "hidden")
	Warn(ctx, "shown")
	Error(ctx, "shown too")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Equal(t, 2, strings.Count(buf.String(), "shown"))
}

func TestSetupFileLogging(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	ctx := clog.WithLogger(t.Context(), clog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, done := SetupFileLogging(ctx, dir, "infra-1", slog.LevelInfo)
	clog.FromContext(ctx).Info("deleting virtual machine", "vm", "web")
	clog.FromContext(ctx).Debug("below level")
	done()

	data, err := os.ReadFile(filepath.Join(dir, "infra-1.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "deleting virtual machine", rec["msg"])
	assert.Equal(t, "web", rec["vm"])
}

func TestSetupFileLoggingDisabled(t *testing.T) {
	ctx := t.Context()
	got, done := SetupFileLogging(ctx, "", "infra-1", slog.LevelInfo)
	done()
	assert.Equal(t, ctx, got)
}

func TestTFHandlerFields(t *testing.T) {
	h := NewTFHandler().
		WithAttrs([]slog.Attr{slog.String("infrastructure_id", "infra-1")}).
		WithGroup("azure").
		WithAttrs([]slog.Attr{slog.String("vm", "web")})

	r := slog.NewRecord(time.Time{}, slog.LevelInfo, "msg", 0)
	r.AddAttrs(
		slog.Int("attempt", 2),
		slog.Group("nic", slog.String("name", "web-if")),
	)

	got := h.(*TFHandler).fields(r)
	assert.Equal(t, map[string]any{
		"infrastructure_id": "infra-1",
		"azure.vm":          "web",
		"azure.attempt":     int64(2),
		"azure.nic.name":    "web-if",
	}, got)

	// Handle must not panic without a configured tflog logger.
	require.NoError(t, h.Handle(t.Context(), r))
}
