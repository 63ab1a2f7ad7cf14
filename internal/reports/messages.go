package reports

import (
	"errors"
	"net/http"

	"github.com/teemow/ecgdrive/internal/credentials"
	"github.com/teemow/ecgdrive/internal/drive"
	"github.com/teemow/ecgdrive/internal/google"
)

// UserMessage maps an error from this module to a sentence that tells the
// user what to do next. It returns "" for a nil error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var denied *google.AuthorizationDeniedError
	var rejected *drive.RemoteRejectedError
	var storageErr *credentials.StorageError

	switch {
	case errors.Is(err, ErrEmptyReport):
		return "The report is empty and was not uploaded."
	case errors.Is(err, google.ErrReauthorizationRequired):
		return "Google Drive access has expired or was revoked. Please reconnect your Google account."
	case errors.Is(err, google.ErrCSRFMismatch):
		return "The Google authorization request is invalid or has expired. Please start connecting again."
	case errors.As(err, &denied):
		if denied.Code == "access_denied" {
			return "Google Drive access was not granted. Connect again and allow access to upload reports."
		}
		return "Google rejected the authorization. Please try connecting again."
	case errors.As(err, &storageErr):
		return "The stored Google credentials could not be read. Please reconnect your Google account."
	case errors.Is(err, drive.ErrQuotaExceeded):
		return "Your Google Drive quota is exhausted. Free up storage or try again later."
	case errors.As(err, &rejected):
		switch rejected.Status {
		case http.StatusNotFound:
			return "The Google Drive folder for this report no longer exists."
		case http.StatusUnauthorized, http.StatusForbidden:
			return "Google Drive refused access to the upload location. Please reconnect your Google account."
		}
		return "Google Drive rejected the upload: " + rejected.Message
	case errors.Is(err, google.ErrTransientNetwork):
		return "Google Drive could not be reached. Please try again in a moment."
	default:
		return "Uploading the report to Google Drive failed."
	}
}
