package o11y

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartEnd(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	t.Run("ok", func(t *testing.T) {
		var err error
		_, span := Start(t.Context(), "ok", attribute.String(AttrInstanceID, "vm-1"))
		End(span, &err)
	})
	t.Run("error", func(t *testing.T) {
		err := fmt.Errorf("boom")
		_, span := Start(t.Context(), "error")
		End(span, &err)
	})

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "ok", spans[0].Name())
	require.Equal(t, codes.Unset, spans[0].Status().Code)
	require.Contains(t, spans[0].Attributes(), attribute.String(AttrInstanceID, "vm-1"))
	require.Equal(t, codes.Error, spans[1].Status().Code)
	require.Equal(t, "boom", spans[1].Status().Description)
}
