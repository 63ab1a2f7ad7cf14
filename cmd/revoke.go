package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newRevokeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke",
		Short: "Revoke Google Drive access and delete the stored token",
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

			res, err := a.auth.Revoke(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Local credentials removed.")
			if res.RemoteErr != nil {
				fmt.Fprintf(w, "Warning: Google could not be reached to revoke the grant: %v\n", res.RemoteErr)
			}
			return nil
		},
	}
}
