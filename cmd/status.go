package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the Google Drive authorization state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, slog.Default(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.auth.Status(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}

			fmt.Fprintf(w, "State:       %s\n", st.State)
			if !st.Expiry.IsZero() {
				fmt.Fprintf(w, "Expiry:      %s\n", st.Expiry.Format(time.RFC3339))
			}
			if len(st.Scopes) > 0 {
				fmt.Fprintf(w, "Scopes:      %s\n", strings.Join(st.Scopes, " "))
			}
			fmt.Fprintf(w, "Can refresh: %t\n", st.CanRefresh)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
