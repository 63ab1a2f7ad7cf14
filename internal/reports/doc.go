// Package reports is the entry point report-generation code calls to store
// a finished ECG PDF in Google Drive.
//
// UploadReport either uploads the report and returns the Drive reference,
// or, when no usable Google grant exists, returns an Outcome carrying a
// fresh consent URL so the caller can redirect the user instead of showing
// an error. UserMessage turns any other failure into a sentence that can be
// shown to the user.
package reports
