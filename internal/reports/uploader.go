package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/ecgdrive/internal/drive"
	"github.com/teemow/ecgdrive/internal/google"
	"github.com/teemow/ecgdrive/internal/instrumentation"
	"github.com/teemow/ecgdrive/internal/logging"
)

// ErrEmptyReport is returned for a report without PDF content.
var ErrEmptyReport = errors.New("reports: report has no content")

// DriveClient is the subset of *drive.Client used by the Uploader.
type DriveClient interface {
	UploadFile(ctx context.Context, content []byte, name, mimeType, parentFolderID string) (*drive.UploadResult, error)
	CreateFolder(ctx context.Context, name, parentFolderID string) (*drive.FolderRef, error)
}

// ConsentIssuer starts a new authorization. *google.Authorizer implements it.
type ConsentIssuer interface {
	BeginAuthorization(ctx context.Context) (string, error)
}

// Report is a generated ECG report.
type Report struct {
	PDF []byte

	// PatientID is optional; when set it names the file
	PatientID string

	// Timestamp is the report time; zero means now
	Timestamp time.Time
}

// Outcome is the result of UploadReport: either an upload result or a
// consent URL, never both.
type Outcome struct {
	Result     *drive.UploadResult `json:"result,omitempty"`
	ConsentURL string              `json:"consent_url,omitempty"`
}

// ConsentRequired reports whether the user must (re)connect Google Drive.
func (o *Outcome) ConsentRequired() bool {
	return o.ConsentURL != ""
}

// Uploader files reports into Drive.
type Uploader struct {
	drive   DriveClient
	consent ConsentIssuer

	layout     FolderLayout
	rootFolder string

	logger  *slog.Logger
	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
	now     func() time.Time
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithFolderLayout sets the per-report folder layout (default LayoutNone).
func WithFolderLayout(l FolderLayout) Option {
	return func(u *Uploader) { u.layout = l }
}

// WithRootFolder files every report beneath a top-level folder with this name.
func WithRootFolder(name string) Option {
	return func(u *Uploader) { u.rootFolder = name }
}

func WithLogger(l *slog.Logger) Option {
	return func(u *Uploader) { u.logger = l }
}

func WithMetrics(m *instrumentation.Metrics) Option {
	return func(u *Uploader) { u.metrics = m }
}

func WithAuditLogger(al *instrumentation.AuditLogger) Option {
	return func(u *Uploader) { u.audit = al }
}

// WithClock replaces time.Now for reports without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(u *Uploader) { u.now = now }
}

// NewUploader creates an Uploader.
func NewUploader(client DriveClient, consent ConsentIssuer, opts ...Option) *Uploader {
	u := &Uploader{
		drive:   client,
		consent: consent,
		layout:  LayoutNone,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.logger == nil {
		u.logger = slog.Default()
	}
	u.logger = logging.WithService(u.logger, "reports")
	return u
}

// UploadReport uploads r. When Google access is missing or was revoked it
// returns an Outcome with a consent URL and a nil error.
func (u *Uploader) UploadReport(ctx context.Context, r Report) (*Outcome, error) {
	ev := instrumentation.NewAuditEvent(instrumentation.AuditActionUpload).
		WithPatient(r.PatientID).
		WithSpanContext(ctx)

	out, err := u.uploadReport(ctx, r)

	auditErr := err
	switch {
	case err != nil:
		u.metrics.RecordReportUpload(ctx, instrumentation.ReportOutcomeFailed)
		u.logger.Error("Report upload failed", logging.PatientHash(r.PatientID), logging.Err(err))
	case out.ConsentRequired():
		u.metrics.RecordReportUpload(ctx, instrumentation.ReportOutcomeConsentRequired)
		u.logger.Info("Report upload needs Google consent", logging.PatientHash(r.PatientID))
		auditErr = google.ErrReauthorizationRequired
	default:
		u.metrics.RecordReportUpload(ctx, instrumentation.ReportOutcomeUploaded)
		ev.WithTarget(out.Result.FileID, out.Result.ParentFolderID)
	}

	u.audit.Log(ev.Complete(auditErr))
	return out, err
}

func (u *Uploader) uploadReport(ctx context.Context, r Report) (*Outcome, error) {
	if len(r.PDF) == 0 {
		return nil, ErrEmptyReport
	}

	ts := r.Timestamp
	if ts.IsZero() {
		ts = u.now()
	}

	res, err := u.upload(ctx, r, ts)
	if errors.Is(err, google.ErrReauthorizationRequired) {
		consentURL, cerr := u.consent.BeginAuthorization(ctx)
		if cerr != nil {
			return nil, fmt.Errorf("failed to start authorization: %w", cerr)
		}
		return &Outcome{ConsentURL: consentURL}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Outcome{Result: res}, nil
}

func (u *Uploader) upload(ctx context.Context, r Report, ts time.Time) (*drive.UploadResult, error) {
	parentID, err := u.resolveFolder(ctx, r.PatientID, ts)
	if err != nil {
		return nil, err
	}

	name := FileName(r.PatientID, ts)
	res, err := u.drive.UploadFile(ctx, r.PDF, name, drive.PDFMimeType, parentID)
	if err != nil {
		return nil, err
	}

	u.logger.Info("Report uploaded",
		logging.PatientHash(r.PatientID),
		logging.FileID(res.FileID),
		logging.FolderID(parentID))
	return res, nil
}

// resolveFolder returns the folder id for a report, "" meaning My Drive root.
func (u *Uploader) resolveFolder(ctx context.Context, patientID string, ts time.Time) (string, error) {
	parentID := ""

	if u.rootFolder != "" {
		root, err := u.drive.CreateFolder(ctx, u.rootFolder, "")
		if err != nil {
			return "", err
		}
		parentID = root.FolderID
	}

	if name := folderName(u.layout, patientID, ts); name != "" {
		folder, err := u.drive.CreateFolder(ctx, name, parentID)
		if err != nil {
			return "", err
		}
		parentID = folder.FolderID
	}

	return parentID, nil
}
