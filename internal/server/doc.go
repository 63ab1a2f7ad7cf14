// Package server exposes the Google Drive integration over HTTP.
//
// # Endpoints
//
//	GET  /google_drive/connect    redirect to the Google consent page (JSON with Accept: application/json)
//	GET  /google_drive/callback   OAuth redirect target (state + code, or error)
//	POST /google_drive/revoke     revoke the grant and clear stored credentials
//	GET  /google_drive/status     authorization state, never token values
//	GET  /google_drive/files      list ?folder_id, bounded by ?limit
//	POST /google_drive/reports    upload the PDF body (?patient_id, ?timestamp)
//	GET  /healthz, /readyz        Kubernetes probes
//
// Errors are JSON ErrorResponse bodies carrying a user facing message and
// the request id. When Google access is missing or was revoked, the
// response is 401 with a fresh consent_url.
//
// MetricsServer serves the Prometheus registry on a separate address.
//
// # Middleware
//
// Every request gets an X-Request-ID (a caller supplied UUID is kept),
// request metrics labelled by a bounded path, and panic recovery.
package server
