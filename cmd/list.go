package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/ecgdrive/internal/drive"
	"github.com/teemow/ecgdrive/internal/google"
	"github.com/teemow/ecgdrive/internal/reports"
)

func newListCmd(flags *globalFlags) *cobra.Command {
	var (
		folderID string
		limit    int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List files in a Google Drive folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive")
			}

			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, slog.Default(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			files := make([]*drive.UploadResult, 0)
			for f, err := range a.drive.ListFiles(cmd.Context(), folderID) {
				if err != nil {
					if errors.Is(err, google.ErrReauthorizationRequired) {
						return errors.New("google Drive is not connected, run 'ecgdrive connect' first")
					}
					return errors.New(reports.UserMessage(err))
				}
				files = append(files, f)
				if len(files) == limit {
					break
				}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(files)
			}

			if len(files) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No files found.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tID\tCREATED")
			for _, f := range files {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", f.FileName, f.FileID, f.CreatedTime.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&folderID, "folder-id", "", "Folder to list (default My Drive root)")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of files to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
