package instrumentation

import "strings"

// Cardinality management helpers for metrics.
// These functions reduce high-cardinality label values to prevent metrics explosion.

// knownPaths are the HTTP paths recorded verbatim in request metrics.
var knownPaths = map[string]bool{
	"/google_drive/connect":  true,
	"/google_drive/callback": true,
	"/google_drive/revoke":   true,
	"/google_drive/status":   true,
	"/google_drive/files":    true,
	"/google_drive/reports":  true,
	"/healthz":               true,
	"/readyz":                true,
}

// PathLabel maps a request path to a bounded label value.
// Unknown paths (scanners, typos) collapse into "other".
//
// Example:
//
//	PathLabel("/google_drive/files")   // "/google_drive/files"
//	PathLabel("/google_drive/files/")  // "/google_drive/files"
//	PathLabel("/wp-login.php")         // "other"
func PathLabel(path string) string {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if knownPaths[path] {
		return path
	}
	return "other"
}

// StatusLabel returns StatusSuccess for a nil error and StatusError otherwise.
func StatusLabel(err error) string {
	if err == nil {
		return StatusSuccess
	}
	return StatusError
}
