package drive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	drive "google.golang.org/api/drive/v3"

	"github.com/teemow/ecgdrive/internal/instrumentation"
	"github.com/teemow/ecgdrive/internal/logging"
)

type folderKey struct {
	name   string
	parent string
}

func (k folderKey) String() string {
	return k.parent + "\x00" + k.name
}

// CreateFolder returns the folder called name inside parentFolderID (My
// Drive root when empty), creating it only if no such folder exists.
// Concurrent calls for the same (name, parent) share one lookup. Results
// are cached until Drive reports the folder missing or ForgetFolders runs.
func (c *Client) CreateFolder(ctx context.Context, name, parentFolderID string) (*FolderRef, error) {
	if name == "" {
		return nil, errors.New("drive: folder name is required")
	}

	key := folderKey{name: name, parent: parentFolderID}
	if ref, ok := c.cachedFolder(key); ok {
		return ref, nil
	}

	v, err, _ := c.folderLookup.Do(key.String(), func() (any, error) {
		if ref, ok := c.cachedFolder(key); ok {
			return ref, nil
		}

		ref, err := c.resolveFolder(ctx, key)
		if err != nil {
			return nil, err
		}

		c.folderMu.Lock()
		c.folders[key] = ref
		c.folderMu.Unlock()
		return ref, nil
	})
	if err != nil {
		return nil, err
	}

	ref := *v.(*FolderRef)
	return &ref, nil
}

func (c *Client) cachedFolder(key folderKey) (*FolderRef, bool) {
	c.folderMu.Lock()
	defer c.folderMu.Unlock()

	ref, ok := c.folders[key]
	if !ok {
		return nil, false
	}
	cp := *ref
	return &cp, true
}

// ForgetFolders empties the folder cache. It runs when the grant behind the
// client changes, since folder ids of another account are not visible.
func (c *Client) ForgetFolders() {
	c.folderMu.Lock()
	defer c.folderMu.Unlock()
	clear(c.folders)
}

// forgetFolder drops the cached folder with the given id and every cached
// child of it.
func (c *Client) forgetFolder(id string) {
	c.folderMu.Lock()
	defer c.folderMu.Unlock()

	for key, ref := range c.folders {
		if ref.FolderID == id || key.parent == id {
			delete(c.folders, key)
		}
	}
	c.logger.Info("Dropped missing folder from cache", logging.FolderID(id))
}

// resolveFolder looks the folder up and creates it when absent. Every retry
// repeats the lookup so a create that succeeded remotely but failed locally
// is not duplicated.
func (c *Client) resolveFolder(ctx context.Context, key folderKey) (*FolderRef, error) {
	ctx, span := instrumentation.StartDriveSpan(ctx, instrumentation.OperationCreateFolder,
		instrumentation.NewSpanAttributeBuilder().WithFolder(key.parent).Build()...)
	start := time.Now()

	created := false
	ref, err := withRetry(ctx, c, instrumentation.OperationCreateFolder, func(ctx context.Context) (*FolderRef, error) {
		ref, err := c.findFolder(ctx, key)
		if err != nil || ref != nil {
			return ref, err
		}

		f, err := c.service.Files.Create(&drive.File{
			Name:     key.name,
			MimeType: FolderMimeType,
			Parents:  parentList(key.parent),
		}).Context(ctx).Fields("id, name, parents").Do()
		if err != nil {
			return nil, err
		}
		created = true
		return &FolderRef{FolderID: f.Id, Name: f.Name, ParentID: key.parent}, nil
	})

	instrumentation.EndSpan(span, err)
	c.metrics.RecordDriveOperation(ctx, instrumentation.OperationCreateFolder, instrumentation.StatusLabel(err), time.Since(start))
	if err != nil {
		if key.parent != "" && isNotFound(err) {
			c.forgetFolder(key.parent)
		}
		return nil, err
	}

	if created {
		c.logger.Info("Created folder", logging.FolderID(ref.FolderID), "parent_id", parentOrRoot(key.parent))
	} else {
		c.logger.Debug("Found existing folder", logging.FolderID(ref.FolderID))
	}
	return ref, nil
}

func (c *Client) findFolder(ctx context.Context, key folderKey) (*FolderRef, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and '%s' in parents and trashed = false",
		escapeQuery(key.name), FolderMimeType, escapeQuery(parentOrRoot(key.parent)))

	list, err := c.service.Files.List().
		Context(ctx).
		Q(q).
		Spaces("drive").
		OrderBy("createdTime").
		PageSize(1).
		Fields("files(id, name, parents)").
		Do()
	if err != nil {
		return nil, err
	}
	if len(list.Files) == 0 {
		return nil, nil
	}

	f := list.Files[0]
	return &FolderRef{FolderID: f.Id, Name: f.Name, ParentID: key.parent}, nil
}

// escapeQuery escapes a string literal for the Drive query language.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

func parentOrRoot(parentID string) string {
	if parentID == "" {
		return "root"
	}
	return parentID
}

func parentList(parentID string) []string {
	if parentID == "" {
		return nil
	}
	return []string{parentID}
}
