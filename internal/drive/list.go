package drive

import (
	"context"
	"fmt"
	"iter"
	"time"

	drive "google.golang.org/api/drive/v3"

	"github.com/teemow/ecgdrive/internal/instrumentation"
)

// ListFiles yields the files inside parentFolderID (My Drive root when
// empty), fetching pages lazily. Ranging again starts over from the first
// page. The sequence stops after yielding an error.
func (c *Client) ListFiles(ctx context.Context, parentFolderID string) iter.Seq2[*UploadResult, error] {
	q := fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(parentOrRoot(parentFolderID)))

	return func(yield func(*UploadResult, error) bool) {
		pageToken := ""
		for {
			page, err := c.listPage(ctx, q, pageToken)
			if err != nil {
				yield(nil, err)
				return
			}

			for _, f := range page.Files {
				if !yield(convertToUploadResult(f), nil) {
					return
				}
			}

			if page.NextPageToken == "" {
				return
			}
			pageToken = page.NextPageToken
		}
	}
}

func (c *Client) listPage(ctx context.Context, q, pageToken string) (*drive.FileList, error) {
	ctx, span := instrumentation.StartDriveSpan(ctx, instrumentation.OperationList)
	start := time.Now()

	page, err := withRetry(ctx, c, instrumentation.OperationList, func(ctx context.Context) (*drive.FileList, error) {
		call := c.service.Files.List().
			Context(ctx).
			Q(q).
			Spaces("drive").
			OrderBy("createdTime desc").
			PageSize(c.pageSize).
			Fields("nextPageToken, files(" + fileFields + ")")
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		return call.Do()
	})

	instrumentation.EndSpan(span, err)
	c.metrics.RecordDriveOperation(ctx, instrumentation.OperationList, instrumentation.StatusLabel(err), time.Since(start))
	return page, err
}
