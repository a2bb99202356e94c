package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span and metric attributes must stay low cardinality: operation names, tool names and
// statuses only. Titles, file paths and catalog ids belong in logs.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation wraps fn in a span named operationName.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)

	status := statusOf(err)
	if err != nil {
		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", time.Since(start).Seconds()),
	)

	return err
}

// InstrumentLedgerOperation instruments ledger persistence.
func (t *Telemetry) InstrumentLedgerOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "ledger_"+operation, "ledger", fn)

	t.RecordLedgerOperation(operation, statusOf(err), time.Since(start))

	return err
}

// InstrumentCommand instruments an external tool invocation such as calibredb or odmpy.
func (t *Telemetry) InstrumentCommand(ctx context.Context, tool, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	err := t.InstrumentOperation(ctx, "command_"+operation, "command", func(ctx context.Context) error {
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String("command.tool", tool),
			attribute.String("command.operation", operation),
		)

		return fn(ctx)
	})

	t.RecordCommand(tool, operation, statusOf(err))

	return err
}

// InstrumentLogin instruments one run of the login state machine.
func (t *Telemetry) InstrumentLogin(ctx context.Context, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "login", "session", fn)

	t.RecordLogin(statusOf(err), time.Since(start))

	return err
}

// InstrumentTitle instruments one title session ("acquire" or "return").
func (t *Telemetry) InstrumentTitle(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()

	t.incrementTitlesInProgress(1)
	defer t.incrementTitlesInProgress(-1)

	err := t.InstrumentOperation(ctx, "title_"+operation, "lifecycle", fn)

	t.RecordTitle(operation, statusOf(err), time.Since(start))

	return err
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}

	return "success"
}
