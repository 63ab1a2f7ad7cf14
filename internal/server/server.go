package server

import (
	"context"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/teemow/ecgdrive/internal/credentials"
	"github.com/teemow/ecgdrive/internal/drive"
	"github.com/teemow/ecgdrive/internal/google"
	"github.com/teemow/ecgdrive/internal/instrumentation"
	"github.com/teemow/ecgdrive/internal/logging"
	"github.com/teemow/ecgdrive/internal/reports"
)

const (
	// DefaultMaxReportBytes bounds the body of an uploaded report.
	DefaultMaxReportBytes = 50 << 20

	// DefaultListLimit is the number of files returned without ?limit.
	DefaultListLimit = 100

	// MaxListLimit caps ?limit.
	MaxListLimit = 1000
)

// Authorizer is the authorization surface used by the HTTP handlers.
// *google.Authorizer implements it.
type Authorizer interface {
	BeginAuthorization(ctx context.Context) (string, error)
	CompleteAuthorization(ctx context.Context, state, code string) (*credentials.TokenRecord, error)
	AbortAuthorization(ctx context.Context, state, errorCode, description string) error
	Status(ctx context.Context) (*google.AuthStatus, error)
	Revoke(ctx context.Context) (*google.RevokeResult, error)
}

// FileLister lists a Drive folder. *drive.Client implements it.
type FileLister interface {
	ListFiles(ctx context.Context, parentFolderID string) iter.Seq2[*drive.UploadResult, error]
}

// ReportUploader uploads reports. *reports.Uploader implements it.
type ReportUploader interface {
	UploadReport(ctx context.Context, r reports.Report) (*reports.Outcome, error)
}

// Server exposes the Google Drive integration over HTTP.
type Server struct {
	auth     Authorizer
	files    FileLister
	uploader ReportUploader

	health         *HealthChecker
	logger         *slog.Logger
	metrics        *instrumentation.Metrics
	maxReportBytes int64

	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithMetrics(m *instrumentation.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealthChecker replaces the default health checker, typically to add
// dependency checks.
func WithHealthChecker(h *HealthChecker) Option {
	return func(s *Server) { s.health = h }
}

// WithMaxReportBytes bounds uploaded report bodies.
func WithMaxReportBytes(n int64) Option {
	return func(s *Server) { s.maxReportBytes = n }
}

// NewServer creates the HTTP server.
func NewServer(auth Authorizer, files FileLister, uploader ReportUploader, opts ...Option) *Server {
	s := &Server{
		auth:           auth,
		files:          files,
		uploader:       uploader,
		maxReportBytes: DefaultMaxReportBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = logging.WithService(s.logger, "http")
	if s.health == nil {
		s.health = NewHealthChecker()
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute, // large resumable uploads
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /google_drive/connect", s.handleConnect)
	mux.HandleFunc("GET /google_drive/callback", s.handleCallback)
	mux.HandleFunc("POST /google_drive/revoke", s.handleRevoke)
	mux.HandleFunc("GET /google_drive/status", s.handleStatus)
	mux.HandleFunc("GET /google_drive/files", s.handleFiles)
	mux.HandleFunc("POST /google_drive/reports", s.handleReports)

	s.health.RegisterHealthEndpoints(mux)

	return requestIDMiddleware(s.instrumentationMiddleware(recoveryMiddleware(s.logger, mux)))
}

// Start listens on addr and serves until Shutdown.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown marks the server as not ready and gracefully stops it.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetShuttingDown()
	return s.httpServer.Shutdown(ctx)
}
