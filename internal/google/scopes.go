package google

import (
	drive "google.golang.org/api/drive/v3"
)

// DefaultOAuthScopes are the scopes requested on consent.
// drive.file only grants access to files this application created.
var DefaultOAuthScopes = []string{
	drive.DriveFileScope,
}
