package drive

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/teemow/ecgdrive/internal/google"
	"github.com/teemow/ecgdrive/internal/instrumentation"
	"github.com/teemow/ecgdrive/internal/logging"
)

const (
	// DefaultResumableThreshold is the payload size from which uploads use
	// a resumable session.
	DefaultResumableThreshold = 5 << 20

	// DefaultChunkSize is the resumable upload chunk size.
	DefaultChunkSize = 4 << 20

	// DefaultPageSize is the page size used by ListFiles.
	DefaultPageSize = 100
)

// Revoker ends the Drive grant. *google.Authorizer implements it.
type Revoker interface {
	Revoke(ctx context.Context) (*google.RevokeResult, error)
}

// Client performs Drive operations for the application identity.
type Client struct {
	service *drive.Service
	tokens  TokenSource
	revoker Revoker

	logger  *slog.Logger
	metrics *instrumentation.Metrics
	retry   RetryPolicy

	resumableThreshold int64
	chunkSize          int
	pageSize           int64

	folderMu     sync.Mutex
	folders      map[folderKey]*FolderRef
	folderLookup singleflight.Group
}

type clientOptions struct {
	endpoint   string
	httpClient *http.Client
	client     Client
}

// Option configures a Client.
type Option func(*clientOptions)

// WithEndpoint points the client at a different Drive API base URL.
func WithEndpoint(endpoint string) Option {
	return func(o *clientOptions) { o.endpoint = endpoint }
}

// WithHTTPClient sets the client whose transport carries Drive requests.
// The bearer token is added on top of its transport.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) { o.client.logger = l }
}

func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *clientOptions) { o.client.metrics = m }
}

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *clientOptions) { o.client.retry = p }
}

// WithResumableThreshold sets the size from which uploads are resumable.
func WithResumableThreshold(n int64) Option {
	return func(o *clientOptions) { o.client.resumableThreshold = n }
}

// WithChunkSize sets the resumable chunk size. googleapi rounds it up to a
// multiple of 256 KiB.
func WithChunkSize(n int) Option {
	return func(o *clientOptions) { o.client.chunkSize = n }
}

func WithPageSize(n int64) Option {
	return func(o *clientOptions) { o.client.pageSize = n }
}

// NewClient creates a Drive client. tokens guards every call; revoker
// serves RevokeAccess.
func NewClient(ctx context.Context, tokens TokenSource, revoker Revoker, opts ...Option) (*Client, error) {
	o := &clientOptions{
		client: Client{
			retry:              DefaultRetryPolicy(),
			resumableThreshold: DefaultResumableThreshold,
			chunkSize:          DefaultChunkSize,
			pageSize:           DefaultPageSize,
		},
	}
	for _, opt := range opts {
		opt(o)
	}

	base := http.DefaultTransport
	if o.httpClient != nil && o.httpClient.Transport != nil {
		base = o.httpClient.Transport
	}
	httpClient := &http.Client{Transport: &bearerTransport{base: base}}
	if o.httpClient != nil {
		httpClient.Timeout = o.httpClient.Timeout
	}

	svcOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if o.endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(o.endpoint))
	}

	service, err := drive.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}

	c := &o.client
	c.service = service
	c.tokens = tokens
	c.revoker = revoker
	c.folders = make(map[folderKey]*FolderRef)
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = logging.WithService(c.logger, "drive")

	return c, nil
}

// RevokeAccess revokes the grant and clears stored credentials. A failed
// remote revocation is logged; the local record is cleared regardless.
func (c *Client) RevokeAccess(ctx context.Context) error {
	res, err := c.revoker.Revoke(ctx)
	if err != nil {
		return err
	}
	c.ForgetFolders()
	if res != nil && res.RemoteErr != nil {
		c.logger.Warn("Google did not confirm revocation", logging.Err(res.RemoteErr))
	}
	return nil
}
