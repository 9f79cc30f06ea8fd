/*
Package tracing provides lightweight request and session tracing.

# Overview

Spans carry a trace id, a parent span id and tags. Finished spans are
handed to a buffered collector that writes them through zap. Trace context
travels over the X-Trace-ID and X-Span-ID headers.

# Usage

	tracer := tracing.New("relay", logger)
	defer tracer.Close()

	// HTTP middleware
	router.Use(tracing.HTTPMiddleware(tracer))

	// Wrap an operation
	err := tracer.Trace(ctx, "session.create", func(ctx context.Context, span *tracing.Span) error {
		span.SetTag("mode", "isolated")
		return launch(ctx)
	})
*/
package tracing
