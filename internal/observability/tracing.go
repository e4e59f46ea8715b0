package observability

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns a tracer for the given name
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartSpan starts a new span from context
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// StartServiceSpan starts a span for service operations
func StartServiceSpan(ctx context.Context, service, operation string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("%s.%s", service, operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.component", service),
			attribute.String("service.operation", operation),
		),
	)
}

// StartClientSpan starts a span for an outgoing call to the verification
// service and injects its context into the request headers.
func StartClientSpan(req *http.Request, operation string) (*http.Request, trace.Span) {
	ctx, span := StartSpan(req.Context(), "verify "+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL.String()),
			Operation(operation),
		),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	return req.WithContext(ctx), span
}

// EndClientSpan records the response status of an outgoing call
func EndClientSpan(span trace.Span, resp *http.Response, err error) {
	defer span.End()
	if err != nil {
		RecordError(span, err)
		return
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		return
	}
	SetSuccess(span)
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks the span as successful
func SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddEvent adds an event to the span
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// DatabaseMetrics holds database-related metrics
type DatabaseMetrics struct {
	queryDuration metric.Float64Histogram
	queryCount    metric.Int64Counter
	errorCount    metric.Int64Counter
}

// NewDatabaseMetrics creates database metrics instruments
func NewDatabaseMetrics() (*DatabaseMetrics, error) {
	meter := otel.Meter(instrumentationName)

	queryDuration, err := meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	queryCount, err := meter.Int64Counter(
		"db.query.count",
		metric.WithDescription("Total number of database queries"),
		metric.WithUnit("{queries}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"db.error.count",
		metric.WithDescription("Total number of database errors"),
		metric.WithUnit("{errors}"),
	)
	if err != nil {
		return nil, err
	}

	return &DatabaseMetrics{
		queryDuration: queryDuration,
		queryCount:    queryCount,
		errorCount:    errorCount,
	}, nil
}

// RecordQuery records a database query metrics
func (m *DatabaseMetrics) RecordQuery(ctx context.Context, system, operation string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", system),
		attribute.String("db.operation", operation),
	}

	m.queryCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.queryDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.errorCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// TraceDB wraps sql.DB with tracing
type TraceDB struct {
	db      *sql.DB
	system  string
	metrics *DatabaseMetrics
}

// NewTraceDB creates a traced database wrapper. system is the db.system
// attribute value, "sqlite" or "postgresql".
func NewTraceDB(db *sql.DB, system string) (*TraceDB, error) {
	metrics, err := NewDatabaseMetrics()
	if err != nil {
		return nil, err
	}

	return &TraceDB{
		db:      db,
		system:  system,
		metrics: metrics,
	}, nil
}

func (t *TraceDB) start(ctx context.Context, name, query string) (context.Context, trace.Span) {
	return StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", t.system),
			attribute.String("db.statement", truncateQuery(query)),
		),
	)
}

// QueryContext executes a query with tracing
func (t *TraceDB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	ctx, span := t.start(ctx, "DB Query", query)
	defer span.End()

	start := time.Now()
	rows, err := t.db.QueryContext(ctx, query, args...)
	t.finish(ctx, span, "query", time.Since(start), err)
	return rows, err
}

// ExecContext executes a statement with tracing
func (t *TraceDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, span := t.start(ctx, "DB Exec", query)
	defer span.End()

	start := time.Now()
	result, err := t.db.ExecContext(ctx, query, args...)
	t.finish(ctx, span, "exec", time.Since(start), err)
	if err == nil {
		if rowsAffected, raErr := result.RowsAffected(); raErr == nil {
			span.SetAttributes(attribute.Int64("db.rows_affected", rowsAffected))
		}
	}
	return result, err
}

// QueryRowContext executes a query that returns a single row with tracing.
// The span ends before the row is scanned; sql.Row gives no later hook.
func (t *TraceDB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	ctx, span := t.start(ctx, "DB QueryRow", query)
	defer span.End()

	start := time.Now()
	row := t.db.QueryRowContext(ctx, query, args...)
	t.finish(ctx, span, "query_row", time.Since(start), row.Err())
	return row
}

func (t *TraceDB) finish(ctx context.Context, span trace.Span, operation string, d time.Duration, err error) {
	if err != nil && err != sql.ErrNoRows {
		RecordError(span, err)
	} else {
		SetSuccess(span)
	}
	span.SetAttributes(attribute.Int64("db.query_duration_ms", d.Milliseconds()))
	t.metrics.RecordQuery(ctx, t.system, operation, d, err)
}

// DB returns the underlying database connection
func (t *TraceDB) DB() *sql.DB {
	return t.db
}

func truncateQuery(query string) string {
	if len(query) > 500 {
		return query[:500] + "..."
	}
	return query
}

// FlowMetrics counts submission flow activity
type FlowMetrics struct {
	submissions  metric.Int64Counter
	outcomes     metric.Int64Counter
	polls        metric.Int64Counter
	pollDuration metric.Float64Histogram
	logins       metric.Int64Counter
}

// NewFlowMetrics creates submission flow metrics instruments
func NewFlowMetrics() (*FlowMetrics, error) {
	meter := otel.Meter(instrumentationName)

	submissions, err := meter.Int64Counter(
		"labelscan.submission.started",
		metric.WithDescription("Total number of confirmed product submissions"),
		metric.WithUnit("{submissions}"),
	)
	if err != nil {
		return nil, err
	}

	outcomes, err := meter.Int64Counter(
		"labelscan.submission.outcomes",
		metric.WithDescription("Terminal submission outcomes by state"),
		metric.WithUnit("{submissions}"),
	)
	if err != nil {
		return nil, err
	}

	polls, err := meter.Int64Counter(
		"labelscan.status.polls",
		metric.WithDescription("Total number of processing status polls"),
		metric.WithUnit("{polls}"),
	)
	if err != nil {
		return nil, err
	}

	pollDuration, err := meter.Float64Histogram(
		"labelscan.submission.elapsed",
		metric.WithDescription("Elapsed processing time at the terminal state"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	logins, err := meter.Int64Counter(
		"labelscan.auth.attempts",
		metric.WithDescription("Total number of login attempts"),
		metric.WithUnit("{attempts}"),
	)
	if err != nil {
		return nil, err
	}

	return &FlowMetrics{
		submissions:  submissions,
		outcomes:     outcomes,
		polls:        polls,
		pollDuration: pollDuration,
		logins:       logins,
	}, nil
}

// RecordSubmission records a confirmed submission. A nil receiver is a no-op
// so callers that skip metrics need no guards.
func (m *FlowMetrics) RecordSubmission(ctx context.Context, imageCount int) {
	if m == nil {
		return
	}
	m.submissions.Add(ctx, 1, metric.WithAttributes(attribute.Int("image_count", imageCount)))
}

// RecordPoll records one status request
func (m *FlowMetrics) RecordPoll(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.polls.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", err == nil)))
}

// RecordOutcome records a terminal state and its elapsed time
func (m *FlowMetrics) RecordOutcome(ctx context.Context, state string, elapsedSeconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(SubmissionState(state))
	m.outcomes.Add(ctx, 1, attrs)
	m.pollDuration.Record(ctx, elapsedSeconds, attrs)
}

// RecordLogin records a login attempt
func (m *FlowMetrics) RecordLogin(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.logins.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}
