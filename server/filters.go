// File: server/filters.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Command filters shipped with the server: command logging and tracing.

package server

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/momentics/hioload-socket/api"
	"github.com/momentics/hioload-socket/internal/logger"
)

const (
	valueStarted = "server.started"
	valueSpan    = "server.span"
)

// LoggingFilter logs every executed command with its duration.
type LoggingFilter struct {
	Log *slog.Logger
}

// OnCommandExecuting implements api.CommandFilter.
func (f LoggingFilter) OnCommandExecuting(ctx *api.CommandContext) {
	ctx.Values[valueStarted] = time.Now()
}

// OnCommandExecuted implements api.CommandFilter.
func (f LoggingFilter) OnCommandExecuted(ctx *api.CommandContext) {
	attrs := []any{
		logger.SessionID(ctx.Session.IdentityKey()),
		logger.Command(ctx.Name),
		logger.Error(ctx.Err),
	}
	if started, ok := ctx.Values[valueStarted].(time.Time); ok {
		attrs = append(attrs, logger.Duration(time.Since(started)))
	}
	if ctx.Cancel {
		attrs = append(attrs, slog.Bool("cancelled", true))
	}
	f.Log.Info("command executed", attrs...)
}

// TracingFilter opens one span per executed command.
type TracingFilter struct {
	tracer trace.Tracer
}

// NewTracingFilter uses the global tracer provider under the given
// instrumentation name.
func NewTracingFilter(name string) *TracingFilter {
	return &TracingFilter{tracer: otel.Tracer(name)}
}

// OnCommandExecuting implements api.CommandFilter.
func (f *TracingFilter) OnCommandExecuting(ctx *api.CommandContext) {
	_, span := f.tracer.Start(context.Background(), "command "+ctx.Name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("socket.command", ctx.Name),
			attribute.String("socket.session", ctx.Session.IdentityKey()),
		))
	ctx.Values[valueSpan] = span
}

// OnCommandExecuted implements api.CommandFilter.
func (f *TracingFilter) OnCommandExecuted(ctx *api.CommandContext) {
	span, ok := ctx.Values[valueSpan].(trace.Span)
	if !ok {
		return
	}
	switch {
	case ctx.Err != nil:
		span.RecordError(ctx.Err)
		span.SetStatus(codes.Error, ctx.Err.Error())
	case ctx.Cancel:
		span.SetAttributes(attribute.Bool("socket.cancelled", true))
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
