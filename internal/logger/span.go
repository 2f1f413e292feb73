package logger

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "offhours-digest"

// Span wraps an OTel span started for one unit of background work.
type Span struct {
	ctx  context.Context
	span trace.Span
}

// StartSpan creates a span as a child of ctx's trace. End must be called.
//
//	sp := logger.StartSpan(ctx, "queue.drain")
//	defer sp.End()
//	ctx = sp.Context()
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) *Span {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, opts...)
	return &Span{ctx: ctx, span: span}
}

func (s *Span) Context() context.Context {
	return s.ctx
}

func (s *Span) End() {
	if s.span != nil {
		s.span.End()
	}
}

// RecordError marks the span failed. nil is ignored.
func (s *Span) RecordError(err error) {
	if s.span != nil && err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
}
