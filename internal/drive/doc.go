// Package drive is the Google Drive client used to store ECG reports.
//
// The client exposes four operations: UploadFile, CreateFolder, ListFiles
// and RevokeAccess. Each remote call first asks its TokenSource for a valid
// access token; if that fails the error is returned unchanged and Drive is
// never contacted. The token travels on the request context and a bearer
// RoundTripper adds it to outgoing requests.
//
// Uploads pick a strategy by payload size: a single multipart request for
// small reports and a chunked resumable session for large ones. Transient
// failures (network errors, HTTP 5xx, 429 and 403 rate limits) are retried
// with bounded exponential backoff. A 401 invalidates the access token and
// the call is repeated once; if the grant itself is gone the error matches
// google.ErrReauthorizationRequired. Other 4xx responses are returned
// immediately as *RemoteRejectedError.
//
// Resolved folders are cached per client. An entry is dropped when Drive
// answers 404 for it and the whole cache is cleared by ForgetFolders.
//
// Example usage:
//
//	client, err := drive.NewClient(ctx, authorizer, authorizer)
//	if err != nil {
//	    return err
//	}
//
//	folder, err := client.CreateFolder(ctx, "2024-01-15", "")
//	if err != nil {
//	    return err
//	}
//
//	res, err := client.UploadFile(ctx, pdf, "ecg_report_20240115_103000.pdf",
//	    drive.PDFMimeType, folder.FolderID)
package drive
