/*
Package tracing provides request tracing for the webview daemon.

# Overview

Every control-API request runs under a trace id minted here (or adopted
from the caller's X-Request-ID header). Spans record operation timing
with parent-child relationships and drain through a buffered collector
into structured logs, so a request can be followed from the HTTP edge
through view operations without an external tracing backend.

# Usage

	// Create tracer
	tracer := tracing.New("webviewd", logger)

	// HTTP middleware
	router.Use(tracing.HTTPMiddleware(tracer))

	// Manual span creation
	span, ctx := tracer.StartSpan(ctx, "operation")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

	span.SetTag("key", "value")

# Trace Format

The X-Request-ID header carries the trace id in both directions. Span
ids stay internal; nesting is reconstructed from the logged parent_id.

# Performance

Span collection is buffered (1000 spans) and processed off the request
path. A full buffer drops spans rather than blocking handlers.
*/
package tracing
