// Package telemetry turns OpenTelemetry spans into log entries, so request
// timings show up next to the rest of the service logs without a collector.
package telemetry

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type logExporter struct {
	logger *log.Logger
}

func (e *logExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		fields := log.Fields{
			"span":        s.Name(),
			"trace_id":    s.SpanContext().TraceID().String(),
			"duration_ms": float64(s.EndTime().Sub(s.StartTime())) / float64(time.Millisecond),
		}
		for _, kv := range s.Attributes() {
			fields[string(kv.Key)] = kv.Value.AsInterface()
		}
		entry := e.logger.WithFields(fields)
		if s.Status().Code == codes.Error {
			entry.WithField("error", s.Status().Description).Warn("span failed")
			continue
		}
		entry.Debug("span")
	}
	return nil
}

func (e *logExporter) Shutdown(context.Context) error { return nil }

// Setup installs a tracer provider that exports finished spans to logger and
// returns it together with its shutdown function.
func Setup(logger *log.Logger) (*sdktrace.TracerProvider, func(context.Context) error) {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(&logExporter{logger: logger}),
	)
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown
}
