package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/teemow/ecgdrive/internal/drive"
	"github.com/teemow/ecgdrive/internal/reports"
)

// FilesResponse lists the files of a folder. Truncated is set when the
// folder holds more than the requested limit.
type FilesResponse struct {
	Files     []*drive.UploadResult `json:"files"`
	Truncated bool                  `json:"truncated"`
}

// handleFiles lists ?folder_id (default My Drive root) up to ?limit files.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	limit := DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > MaxListLimit {
			writeError(w, r, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(MaxListLimit)+".")
			return
		}
		limit = n
	}

	resp := FilesResponse{Files: []*drive.UploadResult{}}
	for f, err := range s.files.ListFiles(r.Context(), r.URL.Query().Get("folder_id")) {
		if err != nil {
			s.writeFailure(w, r, "list", err)
			return
		}
		if len(resp.Files) == limit {
			resp.Truncated = true
			break
		}
		resp.Files = append(resp.Files, f)
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleReports uploads the PDF request body. ?patient_id and ?timestamp
// (RFC 3339) are optional.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || (mt != drive.PDFMimeType && mt != "application/octet-stream") {
			writeError(w, r, http.StatusUnsupportedMediaType, "Reports must be sent as application/pdf.")
			return
		}
	}

	report := reports.Report{PatientID: r.URL.Query().Get("patient_id")}
	if v := r.URL.Query().Get("timestamp"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "timestamp must be an RFC 3339 time.")
			return
		}
		report.Timestamp = ts
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxReportBytes))
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "The report is too large.")
			return
		}
		writeError(w, r, http.StatusBadRequest, "The report could not be read.")
		return
	}
	report.PDF = body

	out, err := s.uploader.UploadReport(r.Context(), report)
	if err != nil {
		s.writeFailure(w, r, "upload_report", err)
		return
	}
	if out.ConsentRequired() {
		writeConsentRequired(w, r, out.ConsentURL)
		return
	}

	writeJSON(w, http.StatusCreated, out.Result)
}
