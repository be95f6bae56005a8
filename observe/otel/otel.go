// Package otel bridges the observe.Sink to OpenTelemetry tracing.
//
// It converts observe.Event records into OTel spans so that run lifecycle,
// stage transitions, and transport fallbacks are visible in any
// OpenTelemetry-compatible backend (Jaeger, Zipkin, Grafana, etc.).
package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/talentsift/research-sdk-go/observe"
)

const instrumentationName = "github.com/talentsift/research-sdk-go"

// Sink implements observe.Sink by emitting OpenTelemetry spans.
type Sink struct {
	tracer trace.Tracer
}

// NewSink creates an OTel sink using the given TracerProvider.
// If tp is nil, it uses a noop tracer provider.
func NewSink(tp trace.TracerProvider) *Sink {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Sink{
		tracer: tp.Tracer(instrumentationName),
	}
}

// Emit converts an observe.Event into an OTel span.
func (s *Sink) Emit(_ context.Context, event observe.Event) error {
	event.Normalize()

	spanName := spanNameFor(event)
	startTime := event.Timestamp

	_, span := s.tracer.Start(context.Background(), spanName, trace.WithTimestamp(startTime))

	attrs := []attribute.KeyValue{
		attribute.String("research.event.kind", string(event.Kind)),
	}
	if event.RunID != "" {
		attrs = append(attrs, attribute.String("research.run.id", event.RunID))
	}
	if event.Stage != "" {
		attrs = append(attrs, attribute.String("research.stage", event.Stage))
	}
	if event.Name != "" {
		attrs = append(attrs, attribute.String("research.event.name", event.Name))
	}
	if event.Status != "" {
		attrs = append(attrs, attribute.String("research.status", string(event.Status)))
	}
	if event.Message != "" {
		attrs = append(attrs, attribute.String("research.message", truncate(event.Message, 1024)))
	}
	if event.Progress > 0 {
		attrs = append(attrs, attribute.Float64("research.progress", event.Progress))
	}
	for k, v := range event.Attributes {
		attrs = append(attrs, attribute.String("research.attr."+k, fmt.Sprintf("%v", v)))
	}

	span.SetAttributes(attrs...)

	if event.Status == observe.StatusFailed {
		span.SetStatus(codes.Error, event.Error)
		if event.Error != "" {
			span.RecordError(fmt.Errorf("%s", event.Error))
		}
	} else if event.Status == observe.StatusCompleted {
		span.SetStatus(codes.Ok, "")
	}

	span.End(trace.WithTimestamp(startTime))
	return nil
}

func spanNameFor(event observe.Event) string {
	switch event.Kind {
	case observe.KindRun:
		return "research.run"
	case observe.KindStage:
		if event.Stage != "" {
			return "research.stage." + event.Stage
		}
		return "research.stage"
	case observe.KindTransport:
		return "research.transport"
	case observe.KindSubmit:
		return "research.submit"
	case observe.KindHistory:
		return "research.history"
	default:
		if event.Name != "" {
			return "research." + event.Name
		}
		return "research.event"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
