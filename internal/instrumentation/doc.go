// Package instrumentation provides OpenTelemetry metrics, tracing and audit
// logging for ecgdrive.
//
// # Metrics
//
// HTTP:
//   - http_requests_total: requests by method, path (bounded by PathLabel) and status
//   - http_request_duration_seconds: request durations
//
// Google Drive:
//   - drive_operations_total / drive_operation_duration_seconds: by operation and status
//   - drive_retries_total: retried attempts by operation
//   - drive_upload_bytes_total: uploaded bytes by upload strategy
//
// OAuth:
//   - oauth_auth_total: authorization lifecycle events by event and result
//   - oauth_token_refresh_total: refresh attempts by result
//
// Reports:
//   - report_uploads_total: report upload requests by outcome
//
// # Tracing
//
// Spans are created for Drive operations (drive.<operation>) and for each
// step of the OAuth lifecycle (oauth.<step>).
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: ecgdrive)
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII: audit trail controls
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordDriveOperation(ctx, instrumentation.OperationUpload,
//		instrumentation.StatusSuccess, time.Since(start))
package instrumentation
