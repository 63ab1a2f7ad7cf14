package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/ecgdrive/internal/logging"
)

// Audit actions.
const (
	AuditActionAuthorize = "authorize"
	AuditActionCallback  = "callback"
	AuditActionRevoke    = "revoke"
	AuditActionUpload    = "upload_report"
)

// AuditEvent captures one security-relevant action for the audit trail:
// authorization callbacks, revocations and report uploads.
//
// # Privacy Considerations
//
// PatientID is PII. LogAttrs only emits its hash; LogAuditAttrs emits the
// raw value and should only be routed to access-controlled sinks.
type AuditEvent struct {
	// ID correlates the audit line with request logs
	ID string

	Action string

	// Report details, empty for authorization events
	PatientID string
	FileID    string
	FolderID  string

	// Execution details
	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	// Tracing context
	TraceID string
	SpanID  string
}

// NewAuditEvent creates an AuditEvent with a fresh id and timing started.
// Call Complete when the action finishes.
func NewAuditEvent(action string) *AuditEvent {
	return &AuditEvent{
		ID:        uuid.NewString(),
		Action:    action,
		StartTime: time.Now(),
	}
}

// WithPatient sets the patient identifier of the report.
func (e *AuditEvent) WithPatient(patientID string) *AuditEvent {
	e.PatientID = patientID
	return e
}

// WithTarget sets the uploaded file and its folder.
func (e *AuditEvent) WithTarget(fileID, folderID string) *AuditEvent {
	e.FileID = fileID
	e.FolderID = folderID
	return e
}

// WithSpanContext extracts trace context from the current span.
func (e *AuditEvent) WithSpanContext(ctx context.Context) *AuditEvent {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		e.TraceID = span.SpanContext().TraceID().String()
		e.SpanID = span.SpanContext().SpanID().String()
	}
	return e
}

// Complete marks the event as finished and calculates duration.
func (e *AuditEvent) Complete(err error) *AuditEvent {
	e.Duration = time.Since(e.StartTime)
	e.Success = err == nil
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Status returns "success" or "error" based on the Success field.
func (e *AuditEvent) Status() string {
	if e.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns slog attributes with the patient id hashed.
func (e *AuditEvent) LogAttrs() []slog.Attr {
	attrs := e.baseAttrs()
	if e.PatientID != "" {
		attrs = append(attrs, logging.PatientHash(e.PatientID))
	}
	return attrs
}

// LogAuditAttrs returns slog attributes including the raw patient id.
func (e *AuditEvent) LogAuditAttrs() []slog.Attr {
	attrs := e.baseAttrs()
	if e.PatientID != "" {
		attrs = append(attrs, slog.String("patient_id", e.PatientID))
	}
	return attrs
}

func (e *AuditEvent) baseAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("audit_id", e.ID),
		slog.String("action", e.Action),
		slog.Duration("duration", e.Duration),
		slog.Bool("success", e.Success),
	}

	if e.FileID != "" {
		attrs = append(attrs, logging.FileID(e.FileID))
	}
	if e.FileID != "" || e.FolderID != "" {
		attrs = append(attrs, logging.FolderID(e.FolderID))
	}
	if e.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", e.TraceID))
	}
	if e.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", e.SpanID))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}
	return attrs
}

// AuditLogger writes AuditEvents as structured log lines.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates a new AuditLogger with the given configuration.
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// Log writes the event. A nil or disabled logger drops it.
func (al *AuditLogger) Log(e *AuditEvent) {
	if al == nil || !al.enabled {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = e.LogAuditAttrs()
	} else {
		attrs = e.LogAttrs()
	}

	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if e.Success {
		al.logger.Info("audit", args...)
	} else {
		al.logger.Warn("audit", args...)
	}
}
