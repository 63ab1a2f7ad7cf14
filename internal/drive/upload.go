package drive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/teemow/ecgdrive/internal/instrumentation"
	"github.com/teemow/ecgdrive/internal/logging"
)

// uploadStrategy decides how the media body of a create call is sent.
type uploadStrategy interface {
	Name() string
	Media(call *drive.FilesCreateCall, r io.Reader, mimeType string) *drive.FilesCreateCall
}

// simpleUpload sends metadata and content in one multipart request.
type simpleUpload struct{}

func (simpleUpload) Name() string { return "simple" }

func (simpleUpload) Media(call *drive.FilesCreateCall, r io.Reader, mimeType string) *drive.FilesCreateCall {
	return call.Media(r, googleapi.ContentType(mimeType), googleapi.ChunkSize(0))
}

// resumableUpload opens an upload session and sends the content in chunks.
// googleapi retries a failed chunk on its own for at most retryDeadline.
type resumableUpload struct {
	chunkSize     int
	retryDeadline time.Duration
}

func (resumableUpload) Name() string { return "resumable" }

func (u resumableUpload) Media(call *drive.FilesCreateCall, r io.Reader, mimeType string) *drive.FilesCreateCall {
	return call.Media(r,
		googleapi.ContentType(mimeType),
		googleapi.ChunkSize(u.chunkSize),
		googleapi.ChunkRetryDeadline(u.retryDeadline))
}

func (c *Client) strategyFor(size int) uploadStrategy {
	if int64(size) >= c.resumableThreshold {
		return resumableUpload{chunkSize: c.chunkSize, retryDeadline: c.retry.chunkRetryDeadline()}
	}
	return simpleUpload{}
}

// UploadFile stores content as a new file named name inside parentFolderID
// (My Drive root when empty). Names are not deduplicated.
func (c *Client) UploadFile(ctx context.Context, content []byte, name, mimeType, parentFolderID string) (*UploadResult, error) {
	if name == "" {
		return nil, errors.New("drive: file name is required")
	}
	if len(content) == 0 {
		return nil, errors.New("drive: file content is empty")
	}
	if mimeType == "" {
		mimeType = PDFMimeType
	}

	strategy := c.strategyFor(len(content))
	attrs := instrumentation.NewSpanAttributeBuilder().
		WithFolder(parentFolderID).
		WithPayload(mimeType, len(content)).
		WithStrategy(strategy.Name()).
		Build()
	ctx, span := instrumentation.StartDriveSpan(ctx, instrumentation.OperationUpload, attrs...)
	start := time.Now()

	meta := &drive.File{
		Name:     name,
		MimeType: mimeType,
	}
	if parentFolderID != "" {
		meta.Parents = []string{parentFolderID}
	}

	f, err := withRetry(ctx, c, instrumentation.OperationUpload, func(ctx context.Context) (*drive.File, error) {
		call := c.service.Files.Create(meta).
			Context(ctx).
			Fields(fileFields)
		call = strategy.Media(call, bytes.NewReader(content), mimeType)
		return call.Do()
	})

	instrumentation.EndSpan(span, err)
	c.metrics.RecordDriveOperation(ctx, instrumentation.OperationUpload, instrumentation.StatusLabel(err), time.Since(start))
	if err != nil {
		if parentFolderID != "" && isNotFound(err) {
			c.forgetFolder(parentFolderID)
		}
		c.logger.Error("Upload failed",
			logging.FolderID(parentFolderID),
			"strategy", strategy.Name(),
			"size", len(content),
			logging.Err(err))
		return nil, err
	}

	c.metrics.RecordUploadBytes(ctx, strategy.Name(), int64(len(content)))
	res := convertToUploadResult(f)
	c.logger.Info("Uploaded file",
		logging.FileID(res.FileID),
		logging.FolderID(res.ParentFolderID),
		"strategy", strategy.Name(),
		"size", len(content),
		logging.Duration(time.Since(start)))
	return res, nil
}
