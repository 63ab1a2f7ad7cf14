package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/ecgdrive/internal/config"
	"github.com/teemow/ecgdrive/internal/logging"
)

// version will be set by main
var version = "dev"

// SetVersion sets the version reported by the CLI
func SetVersion(v string) {
	version = v
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	debug     bool
	logFormat string

	credentialsFile string
	tokenFile       string
	redirectURI     string
	storage         string
	redisURL        string
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "ecgdrive",
		Short: "Uploads ECG PDF reports to Google Drive",
		Long: `ecgdrive files generated ECG PDF reports into a Google Drive folder on
behalf of a single application identity.

It can run as:
  - An HTTP server that handles the Google consent flow and accepts reports
  - A CLI for connecting, uploading, listing and revoking access`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(cmd.ErrOrStderr(), flags.logFormat, flags.debug)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "ecgdrive version %s\n" .Version}}`)

	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	pf.StringVar(&flags.logFormat, "log-format", "text", "Log format: text or json")
	pf.StringVar(&flags.credentialsFile, "credentials-file", "", "Google client secrets JSON. Can also use ECGDRIVE_CREDENTIALS_FILE env var.")
	pf.StringVar(&flags.tokenFile, "token-file", "", "Token file for file storage. Can also use ECGDRIVE_TOKEN_FILE env var.")
	pf.StringVar(&flags.redirectURI, "redirect-uri", "", "OAuth redirect URI registered in the Google console. Can also use ECGDRIVE_REDIRECT_URI env var.")
	pf.StringVar(&flags.storage, "storage", "", "Credential storage: file or redis. Can also use ECGDRIVE_STORAGE env var.")
	pf.StringVar(&flags.redisURL, "redis-url", "", "Redis URL for redis storage. Can also use ECGDRIVE_REDIS_URL env var.")

	rootCmd.AddCommand(newServeCmd(flags))
	rootCmd.AddCommand(newConnectCmd(flags))
	rootCmd.AddCommand(newUploadCmd(flags))
	rootCmd.AddCommand(newListCmd(flags))
	rootCmd.AddCommand(newStatusCmd(flags))
	rootCmd.AddCommand(newRevokeCmd(flags))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute is the main entry point for the CLI application
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies explicitly set flags.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (config.Config, error) {
	cfg := config.Load()

	overrides := []struct {
		flag  string
		value string
		dst   *string
	}{
		{"credentials-file", flags.credentialsFile, &cfg.CredentialsFile},
		{"token-file", flags.tokenFile, &cfg.TokenFile},
		{"redirect-uri", flags.redirectURI, &cfg.RedirectURI},
		{"storage", flags.storage, &cfg.Storage},
		{"redis-url", flags.redisURL, &cfg.RedisURL},
	}
	for _, o := range overrides {
		if cmd.Flags().Changed(o.flag) {
			*o.dst = o.value
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ecgdrive version %s\n", version)
		},
	}
}
