// Package cmd implements the command-line interface for ecgdrive.
//
// This package provides the following commands:
//   - serve: Start the HTTP server (consent flow, report uploads, metrics)
//   - connect: Authorize Google Drive access through a temporary loopback callback
//   - upload: Upload a PDF report
//   - list: List files in a Drive folder
//   - status: Show the authorization state
//   - revoke: Revoke Google Drive access and delete the stored token
//   - version: Display version information
//
// Configuration is read from ECGDRIVE_* environment variables; flags
// override them when set explicitly.
package cmd
