package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/ecgdrive/internal/reports"
)

func newUploadCmd(flags *globalFlags) *cobra.Command {
	var (
		patientID string
		timestamp string
	)

	cmd := &cobra.Command{
		Use:   "upload <report.pdf>",
		Short: "Upload an ECG PDF report to Google Drive",
		Long: `Upload an ECG PDF report to Google Drive.

The file is stored as <patient-id>_<YYYYMMDD>_<HHMMSS>.pdf inside the
configured folder layout. If Google Drive is not connected yet, run
'ecgdrive connect' first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			report := reports.Report{PatientID: patientID}
			if timestamp != "" {
				report.Timestamp, err = time.Parse(time.RFC3339, timestamp)
				if err != nil {
					return fmt.Errorf("invalid --timestamp, expected RFC3339: %w", err)
				}
			}

			report.PDF, err = os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read report: %w", err)
			}

			a, err := newApp(cmd.Context(), cfg, slog.Default(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.uploader.UploadReport(cmd.Context(), report)
			if err != nil {
				return errors.New(reports.UserMessage(err))
			}
			if out.ConsentRequired() {
				// The pending consent lives only as long as this process
				return errors.New("google Drive is not connected, run 'ecgdrive connect' first")
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Uploaded %s\n", out.Result.FileName)
			fmt.Fprintf(w, "  File ID: %s\n", out.Result.FileID)
			if out.Result.WebViewLink != "" {
				fmt.Fprintf(w, "  Link:    %s\n", out.Result.WebViewLink)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&patientID, "patient-id", "", "Patient identifier used in the file name")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "Report timestamp in RFC3339 (default now)")
	return cmd
}
