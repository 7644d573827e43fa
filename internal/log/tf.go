package log

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// TFHandler forwards slog records to the provider's tflog subsystem, so they
// end up in the Terraform CLI log with the level TF_LOG_PROVIDER_IAAS selects.
type TFHandler struct {
	attrs  []slog.Attr
	groups []string
}

const subsystem = "iaas"

func NewTFHandler() slog.Handler {
	return &TFHandler{}
}

// Enabled implements slog.Handler.
func (h *TFHandler) Enabled(_ context.Context, _ slog.Level) bool {
	// tflog filters by level itself and exposes no way to ask.
	return true
}

// Handle implements slog.Handler.
func (h *TFHandler) Handle(ctx context.Context, record slog.Record) error {
	ctx = tflog.NewSubsystem(ctx, subsystem, tflog.WithAdditionalLocationOffset(3))
	fields := h.fields(record)

	switch {
	case record.Level < slog.LevelInfo:
		tflog.SubsystemDebug(ctx, subsystem, record.Message, fields)
	case record.Level < slog.LevelWarn:
		tflog.SubsystemInfo(ctx, subsystem, record.Message, fields)
	case record.Level < slog.LevelError:
		tflog.SubsystemWarn(ctx, subsystem, record.Message, fields)
	default:
		tflog.SubsystemError(ctx, subsystem, record.Message, fields)
	}
	return nil
}

// fields flattens handler and record attributes into tflog fields. Record
// attributes win over handler ones; group names prefix keys with dots.
func (h *TFHandler) fields(record slog.Record) map[string]any {
	out := make(map[string]any, len(h.attrs)+record.NumAttrs())
	for _, a := range h.attrs {
		flatten(out, "", a)
	}
	prefix := strings.Join(h.groups, ".")
	record.Attrs(func(a slog.Attr) bool {
		flatten(out, prefix, a)
		return true
	})
	return out
}

func flatten(out map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			flatten(out, key, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	out[key] = a.Value.Any()
}

// WithAttrs implements slog.Handler.
func (h *TFHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := strings.Join(h.groups, ".")
	next := &TFHandler{
		attrs:  make([]slog.Attr, 0, len(h.attrs)+len(attrs)),
		groups: h.groups,
	}
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		if prefix != "" {
			a.Key = prefix + "." + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return next
}

// WithGroup implements slog.Handler.
func (h *TFHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &TFHandler{
		attrs:  h.attrs,
		groups: append(append([]string(nil), h.groups...), name),
	}
}
