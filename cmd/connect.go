package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/ecgdrive/internal/google"
	"github.com/teemow/ecgdrive/internal/reports"
)

func newConnectCmd(flags *globalFlags) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Authorize Google Drive access",
		Long: `Authorize ecgdrive to upload to Google Drive.

connect prints the Google consent URL and waits for the redirect on a
temporary listener bound to the redirect URI, which therefore must be a
loopback http URI with an explicit port, for example
http://localhost:8080/google_drive/callback. For deployed instances use
the /google_drive/connect endpoint of 'ecgdrive serve' instead.`,
		Args: cobra.NoArgs,
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

			return runConnect(cmd, a.auth, timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long to wait for the browser redirect")
	return cmd
}

func runConnect(cmd *cobra.Command, auth *google.Authorizer, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	addr, path, err := loopbackListenAddr(auth.RedirectURI())
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	result := make(chan error, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(path, callbackHandler(ctx, auth, result))

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = srv.Shutdown(stopCtx)
	}()

	consentURL, err := auth.BeginAuthorization(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Open this URL in your browser to connect Google Drive:\n\n  %s\n\n", consentURL)
	fmt.Fprintf(out, "Waiting for the redirect to %s ...\n", auth.RedirectURI())

	select {
	case err := <-result:
		if err != nil {
			return errors.New(reports.UserMessage(err))
		}
		fmt.Fprintln(out, "Google Drive connected.")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for the Google redirect")
	}
}

// callbackHandler completes the authorization and reports the outcome on
// result. Callbacks with an unknown state are answered but ignored.
func callbackHandler(ctx context.Context, auth *google.Authorizer, result chan<- error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var err error
		if oauthErr := q.Get("error"); oauthErr != "" {
			err = auth.AbortAuthorization(ctx, q.Get("state"), oauthErr, q.Get("error_description"))
		} else {
			_, err = auth.CompleteAuthorization(ctx, q.Get("state"), q.Get("code"))
		}

		if err != nil {
			http.Error(w, reports.UserMessage(err), http.StatusBadRequest)
			if errors.Is(err, google.ErrCSRFMismatch) {
				return
			}
		} else {
			fmt.Fprintln(w, "Google Drive connected. You can close this window.")
		}

		select {
		case result <- err:
		default:
		}
	}
}

// loopbackListenAddr returns the listen address and callback path for a
// loopback redirect URI.
func loopbackListenAddr(redirectURI string) (addr, path string, err error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", "", fmt.Errorf("invalid redirect URI: %w", err)
	}
	if u.Scheme != "http" || !isLoopbackHost(u.Hostname()) {
		return "", "", fmt.Errorf("connect needs a loopback http redirect URI, got %q; use the /google_drive/connect endpoint of 'ecgdrive serve' instead", redirectURI)
	}
	if u.Port() == "" {
		return "", "", fmt.Errorf("redirect URI %q must include a port", redirectURI)
	}

	path = u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return u.Host, path, nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
