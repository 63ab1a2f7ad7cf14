package reports

import (
	"testing"
	"time"
)

func TestFileName(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		patientID string
		ts        time.Time
		want      string
	}{
		{"patient", "P123", ts, "P123_20240115_103000.pdf"},
		{"no patient", "", ts, "ecg_report_20240115_103000.pdf"},
		{"whitespace patient", "   ", ts, "ecg_report_20240115_103000.pdf"},
		{"unsafe characters dropped", "../P 12/3", ts, "P123_20240115_103000.pdf"},
		{"only unsafe characters", "///", ts, "ecg_report_20240115_103000.pdf"},
		{"keeps dash and underscore", "ward-7_bed_2", ts, "ward-7_bed_2_20240115_103000.pdf"},
		{
			"formats in the timestamp location",
			"P1",
			time.Date(2024, 1, 15, 23, 59, 59, 0, time.FixedZone("CET", 3600)),
			"P1_20240115_235959.pdf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FileName(tt.patientID, tt.ts); got != tt.want {
				t.Errorf("FileName(%q) = %q, want %q", tt.patientID, got, tt.want)
			}
		})
	}
}

func TestParseFolderLayout(t *testing.T) {
	tests := []struct {
		in      string
		want    FolderLayout
		wantErr bool
	}{
		{"", LayoutNone, false},
		{"none", LayoutNone, false},
		{"date", LayoutDate, false},
		{" Patient ", LayoutPatient, false},
		{"monthly", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFolderLayout(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFolderLayout(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFolderLayout(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFolderName(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		layout    FolderLayout
		patientID string
		want      string
	}{
		{LayoutNone, "P123", ""},
		{LayoutDate, "P123", "2024-01-15"},
		{LayoutPatient, "P123", "P123"},
		{LayoutPatient, "", "2024-01-15"},
	}

	for _, tt := range tests {
		if got := folderName(tt.layout, tt.patientID, ts); got != tt.want {
			t.Errorf("folderName(%q, %q) = %q, want %q", tt.layout, tt.patientID, got, tt.want)
		}
	}
}
