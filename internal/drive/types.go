package drive

import (
	"time"

	drive "google.golang.org/api/drive/v3"
)

const (
	// FolderMimeType is the MIME type for Google Drive folders
	FolderMimeType = "application/vnd.google-apps.folder"

	// PDFMimeType is the MIME type of generated reports
	PDFMimeType = "application/pdf"
)

// fileFields is the partial response requested for created and listed files.
const fileFields = "id, name, mimeType, size, createdTime, webViewLink, parents"

// UploadResult describes a file stored in Drive.
type UploadResult struct {
	// FileID is the Drive identifier of the file
	FileID string `json:"file_id"`

	// FileName is the name the file was stored under
	FileName string `json:"file_name"`

	// WebViewLink opens the file in the Drive viewer
	WebViewLink string `json:"web_view_link,omitempty"`

	// CreatedTime is when Drive created the file
	CreatedTime time.Time `json:"created_time"`

	// ParentFolderID is the first parent reported by Drive. Files in My Drive
	// carry the id of the root folder here, not an empty string
	ParentFolderID string `json:"parent_folder_id,omitempty"`

	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// FolderRef identifies a folder resolved or created by CreateFolder.
type FolderRef struct {
	FolderID string `json:"folder_id"`
	Name     string `json:"name"`

	// ParentID is empty for folders directly under My Drive
	ParentID string `json:"parent_id,omitempty"`
}

// convertToUploadResult converts a Drive API File to an UploadResult
func convertToUploadResult(f *drive.File) *UploadResult {
	res := &UploadResult{
		FileID:      f.Id,
		FileName:    f.Name,
		WebViewLink: f.WebViewLink,
		MimeType:    f.MimeType,
		Size:        f.Size,
	}

	if len(f.Parents) > 0 {
		res.ParentFolderID = f.Parents[0]
	}
	if f.CreatedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.CreatedTime); err == nil {
			res.CreatedTime = t
		}
	}

	return res
}
