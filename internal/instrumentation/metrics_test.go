package instrumentation

import (
	"context"
	"testing"
	"time"
)

func newTestMetrics(t *testing.T) (context.Context, *Metrics) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: ExporterPrometheus,
		TracingExporter: ExporterNone,
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil")
	}
	return ctx, metrics
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	ctx, metrics := newTestMetrics(t)

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/google_drive/files", 200, 100*time.Millisecond)
	metrics.RecordHTTPRequest(ctx, "POST", "/google_drive/reports", 503, 50*time.Millisecond)
	metrics.RecordHTTPRequest(ctx, "GET", "/random/scanner/path", 404, time.Millisecond)
}

func TestMetrics_RecordDrive(t *testing.T) {
	ctx, metrics := newTestMetrics(t)

	metrics.RecordDriveOperation(ctx, OperationUpload, StatusSuccess, 200*time.Millisecond)
	metrics.RecordDriveOperation(ctx, OperationCreateFolder, StatusError, 500*time.Millisecond)
	metrics.RecordDriveRetry(ctx, OperationUpload)
	metrics.RecordUploadBytes(ctx, "simple", 1024)
	metrics.RecordUploadBytes(ctx, "resumable", 8<<20)
}

func TestMetrics_RecordOAuth(t *testing.T) {
	ctx, metrics := newTestMetrics(t)

	metrics.RecordOAuthEvent(ctx, OAuthEventBegin, OAuthResultSuccess)
	metrics.RecordOAuthEvent(ctx, OAuthEventComplete, OAuthResultDenied)
	metrics.RecordOAuthTokenRefresh(ctx, OAuthResultSuccess)
	metrics.RecordOAuthTokenRefresh(ctx, OAuthResultExpired)
	metrics.RecordReportUpload(ctx, ReportOutcomeConsentRequired)
}

func TestMetrics_NilSafe(t *testing.T) {
	ctx := context.Background()

	var nilMetrics *Metrics
	nilMetrics.RecordHTTPRequest(ctx, "GET", "/", 200, time.Millisecond)
	nilMetrics.RecordDriveOperation(ctx, OperationList, StatusSuccess, time.Millisecond)
	nilMetrics.RecordDriveRetry(ctx, OperationList)
	nilMetrics.RecordUploadBytes(ctx, "simple", 1)
	nilMetrics.RecordOAuthEvent(ctx, OAuthEventRevoke, OAuthResultSuccess)
	nilMetrics.RecordOAuthTokenRefresh(ctx, OAuthResultFailure)
	nilMetrics.RecordReportUpload(ctx, ReportOutcomeFailed)

	empty := &Metrics{}
	empty.RecordDriveOperation(ctx, OperationList, StatusSuccess, time.Millisecond)
}
