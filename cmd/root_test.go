package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/ecgdrive/internal/credentials"
	"github.com/teemow/ecgdrive/internal/google"
)

// isolateEnv points the CLI at a throwaway token file with inline client
// credentials.
func isolateEnv(t *testing.T) string {
	t.Helper()
	for _, key := range []string{
		"ECGDRIVE_CREDENTIALS_FILE",
		"ECGDRIVE_REDIRECT_URI",
		"ECGDRIVE_TOKEN_ENCRYPTION_KEY",
		"ECGDRIVE_STORAGE",
		"ECGDRIVE_REDIS_URL",
		"ECGDRIVE_FOLDER_LAYOUT",
		"ECGDRIVE_ROOT_FOLDER",
	} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	t.Setenv("GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "client-secret")
	t.Setenv("ECGDRIVE_TOKEN_FILE", filepath.Join(dir, "token.json"))
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	SetVersion("1.2.3")
	t.Cleanup(func() { SetVersion("dev") })

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "ecgdrive version 1.2.3\n", out)
}

func TestStatusCommand_Unauthenticated(t *testing.T) {
	isolateEnv(t)

	out, err := execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "State:       unauthenticated")
	assert.Contains(t, out, "Can refresh: false")

	out, err = execute(t, "status", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"state": "unauthenticated"`)
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	isolateEnv(t)

	// redis storage without a URL fails validation
	_, err := execute(t, "status", "--storage", "redis")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")

	_, err = execute(t, "status", "--redirect-uri", "http://example.com/callback")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestUploadCommand_RequiresConnect(t *testing.T) {
	dir := isolateEnv(t)

	report := filepath.Join(dir, "report.pdf")
	require.NoError(t, os.WriteFile(report, []byte("%PDF-1.4 test"), 0o600))

	_, err := execute(t, "upload", report, "--patient-id", "P123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ecgdrive connect")
}

func TestUploadCommand_Errors(t *testing.T) {
	dir := isolateEnv(t)

	_, err := execute(t, "upload", filepath.Join(dir, "missing.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read report")

	_, err = execute(t, "upload", filepath.Join(dir, "missing.pdf"), "--timestamp", "yesterday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--timestamp")

	_, err = execute(t, "upload")
	require.Error(t, err)
}

func TestListCommand_InvalidLimit(t *testing.T) {
	isolateEnv(t)

	_, err := execute(t, "list", "--limit", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--limit")
}

func TestLoopbackListenAddr(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		wantAddr string
		wantPath string
		wantErr  bool
	}{
		{
			name:     "localhost",
			uri:      "http://localhost:8080/google_drive/callback",
			wantAddr: "localhost:8080",
			wantPath: "/google_drive/callback",
		},
		{
			name:     "ipv4 loopback without path",
			uri:      "http://127.0.0.1:9999",
			wantAddr: "127.0.0.1:9999",
			wantPath: "/",
		},
		{
			name:     "ipv6 loopback",
			uri:      "http://[::1]:8080/cb",
			wantAddr: "[::1]:8080",
			wantPath: "/cb",
		},
		{name: "https", uri: "https://localhost:8443/cb", wantErr: true},
		{name: "public host", uri: "http://example.com:8080/cb", wantErr: true},
		{name: "missing port", uri: "http://localhost/cb", wantErr: true},
		{name: "malformed", uri: "http://[::1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, path, err := loopbackListenAddr(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, addr)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestCallbackHandler(t *testing.T) {
	ctx := context.Background()
	pending := google.NewMemoryPendingStore(nil)
	t.Cleanup(pending.Stop)

	auth := google.NewAuthorizer(&oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/google_drive/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.example.com/auth",
			TokenURL: "http://127.0.0.1:1/token",
		},
	}, credentials.NewMemoryStore(), pending)

	consentURL, err := auth.BeginAuthorization(ctx)
	require.NoError(t, err)
	u, err := url.Parse(consentURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)

	result := make(chan error, 1)
	handler := callbackHandler(ctx, auth, result)

	// A forged state is answered but does not end the wait
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/google_drive/callback?state=forged&code=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	select {
	case err := <-result:
		t.Fatalf("unexpected result for forged state: %v", err)
	default:
	}

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/google_drive/callback?state="+state+"&error=access_denied", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "not granted"))

	err = <-result
	var denied *google.AuthorizationDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "access_denied", denied.Code)
}
