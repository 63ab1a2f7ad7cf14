// Package logging provides structured logging utilities for the ecgdrive application.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - PII sanitization (patient id hashing)
//   - Consistent attribute naming across the codebase
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "drive.upload")
//	logger.Info("uploading report",
//	    logging.FolderID(folderID),
//	    logging.PatientHash(patientID))
//
// # Security Considerations
//
//   - Patient identifiers are hashed to prevent PII leakage while allowing correlation
//   - Tokens are never logged directly, only their length via SanitizeToken
package logging
