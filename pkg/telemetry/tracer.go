// Package telemetry provides OpenTelemetry integration for the application.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the default tracer name for the application
	TracerName = "github.com/gormscope/gormscope"
)

// Tracer returns the global tracer for the application
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartSpan starts a new span with the given name and returns the context and span.
// The caller is responsible for calling span.End() when the operation is complete.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// SetSpanError records an error on the span and sets its status to error
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanOK sets the span status to OK
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// Common attribute keys for consistent naming
var (
	AttrSessionID = attribute.Key("db.session.id")
	AttrEngine    = attribute.Key("db.engine")
	AttrNested    = attribute.Key("db.tx.nested")

	AttrMigrationVersion = attribute.Key("migration.version")
	AttrMigrationDryRun  = attribute.Key("migration.dryrun")
)

// WithSessionAttributes returns span start options with session attributes
func WithSessionAttributes(sessionID, engine string, nested bool) trace.SpanStartOption {
	return trace.WithAttributes(
		AttrSessionID.String(sessionID),
		AttrEngine.String(engine),
		AttrNested.Bool(nested),
	)
}

// WithMigrationAttributes returns span start options for a migration run
func WithMigrationAttributes(fromVersion, toVersion int, dryRun bool) trace.SpanStartOption {
	return trace.WithAttributes(
		AttrMigrationVersion.IntSlice([]int{fromVersion, toVersion}),
		AttrMigrationDryRun.Bool(dryRun),
	)
}
