// Package telemetry wires run and round events onto OpenTelemetry spans: a
// span per run, with one child span per round recording its kind, whether
// it was served from cache, and any failure.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/gitter-badger/fetch-2/internal/eventbus"
	"github.com/gitter-badger/fetch-2/internal/events"
	round "github.com/gitter-badger/fetch-2/internal/round"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers that
// turn run/round events into spans. If endpoint is empty, no exporter is
// configured and Setup returns a no-op shutdown function.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	sub := &subscriber{tracer: otel.Tracer("fetch")}
	sub.register()

	return tp.Shutdown, nil
}

type subscriber struct {
	tracer     trace.Tracer
	runSpans   sync.Map // RunID -> trace.Span
	roundSpans sync.Map // RunID -> trace.Span, valid between RoundStart and RoundFinish
}

func roundKindName(k round.DescriptionKind) string {
	switch k {
	case round.OneRound:
		return "one"
	case round.ManyRound:
		return "many"
	case round.ConcurrentRound:
		return "concurrent"
	default:
		return "unknown"
	}
}

func (s *subscriber) register() {
	eventbus.Subscribe(func(ctx context.Context, e events.RunStart) {
		_, span := s.tracer.Start(ctx, "fetch.run")
		s.runSpans.Store(e.RunID, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.RunFinish) {
		v, ok := s.runSpans.LoadAndDelete(e.RunID)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			attribute.Int("fetch.rounds", e.Rounds),
			attribute.Int64("fetch.duration_ns", e.Duration.Nanoseconds()),
		)
		if e.Err != nil {
			span.RecordError(e.Err)
		}
		span.End()
	})

	eventbus.Subscribe(func(ctx context.Context, e events.RoundStart) {
		parent := ctx
		if v, ok := s.runSpans.Load(e.RunID); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		}
		_, span := s.tracer.Start(parent, "fetch.round")
		span.SetAttributes(attribute.String("fetch.round.kind", roundKindName(e.Kind)))
		s.roundSpans.Store(e.RunID, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.RoundFinish) {
		v, ok := s.roundSpans.LoadAndDelete(e.RunID)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			attribute.Bool("fetch.round.served_from_cache", e.ServedFromCache),
			attribute.Int64("fetch.round.duration_ns", e.Duration.Nanoseconds()),
		)
		if e.Err != nil {
			span.RecordError(e.Err)
		}
		span.End()
	})
}
