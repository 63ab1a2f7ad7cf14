package reports

import (
	"fmt"
	"strings"
	"time"
)

// FolderLayout selects the folder a report is filed under.
type FolderLayout string

const (
	// LayoutNone uploads directly into the root folder (or My Drive).
	LayoutNone FolderLayout = "none"
	// LayoutDate files reports under a YYYY-MM-DD folder.
	LayoutDate FolderLayout = "date"
	// LayoutPatient files reports under the patient id, or the date when
	// the report has no patient.
	LayoutPatient FolderLayout = "patient"
)

const (
	fileTimestampLayout = "20060102_150405"
	dateFolderLayout    = "2006-01-02"
)

// ParseFolderLayout validates a layout name. The empty string means LayoutNone.
func ParseFolderLayout(s string) (FolderLayout, error) {
	switch l := FolderLayout(strings.ToLower(strings.TrimSpace(s))); l {
	case "":
		return LayoutNone, nil
	case LayoutNone, LayoutDate, LayoutPatient:
		return l, nil
	default:
		return "", fmt.Errorf("unknown folder layout %q (want none, date or patient)", s)
	}
}

// FileName returns "<patient>_<YYYYMMDD_HHMMSS>.pdf", or
// "ecg_report_<YYYYMMDD_HHMMSS>.pdf" without a usable patient id.
// The timestamp is formatted in its own location.
func FileName(patientID string, ts time.Time) string {
	stamp := ts.Format(fileTimestampLayout)
	if id := SanitizePatientID(patientID); id != "" {
		return id + "_" + stamp + ".pdf"
	}
	return "ecg_report_" + stamp + ".pdf"
}

// SanitizePatientID keeps ASCII letters, digits, '-' and '_' so the id is
// safe in file and folder names. Other characters are dropped.
func SanitizePatientID(patientID string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(patientID) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// folderName returns the layout folder for a report, or "" for LayoutNone.
func folderName(layout FolderLayout, patientID string, ts time.Time) string {
	switch layout {
	case LayoutDate:
		return ts.Format(dateFolderLayout)
	case LayoutPatient:
		if id := SanitizePatientID(patientID); id != "" {
			return id
		}
		return ts.Format(dateFolderLayout)
	default:
		return ""
	}
}
