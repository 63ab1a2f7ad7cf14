package reports

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/ecgdrive/internal/credentials"
	"github.com/teemow/ecgdrive/internal/drive"
	"github.com/teemow/ecgdrive/internal/drive/drivetest"
	"github.com/teemow/ecgdrive/internal/google"
)

const redirectURI = "http://localhost:8080/google_drive/callback"

var (
	reportTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	testPDF    = []byte("%PDF-1.4\n%%EOF\n")
)

// fakeDrive records the calls the Uploader makes
type fakeDrive struct {
	folders   map[string]string // "parent/name" -> id
	uploads   []fakeUpload
	uploadErr error
	folderErr error
}

type fakeUpload struct {
	name, parent string
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{folders: make(map[string]string)}
}

func (f *fakeDrive) UploadFile(_ context.Context, content []byte, name, mimeType, parent string) (*drive.UploadResult, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploads = append(f.uploads, fakeUpload{name: name, parent: parent})
	return &drive.UploadResult{
		FileID:         fmt.Sprintf("file-%d", len(f.uploads)),
		FileName:       name,
		ParentFolderID: parent,
		MimeType:       mimeType,
		Size:           int64(len(content)),
	}, nil
}

func (f *fakeDrive) CreateFolder(_ context.Context, name, parent string) (*drive.FolderRef, error) {
	if f.folderErr != nil {
		return nil, f.folderErr
	}
	key := parent + "/" + name
	id, ok := f.folders[key]
	if !ok {
		id = fmt.Sprintf("folder-%d", len(f.folders)+1)
		f.folders[key] = id
	}
	return &drive.FolderRef{FolderID: id, Name: name, ParentID: parent}, nil
}

type fakeConsent struct {
	url   string
	err   error
	calls int
}

func (f *fakeConsent) BeginAuthorization(context.Context) (string, error) {
	f.calls++
	return f.url, f.err
}

// newAuthorizer returns an authorizer whose token endpoint is never reached
func newAuthorizer(t *testing.T, store credentials.Store) (*google.Authorizer, *google.MemoryPendingStore) {
	t.Helper()

	pending := google.NewMemoryPendingStore(nil)
	t.Cleanup(pending.Stop)

	conf := &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  redirectURI,
		Scopes:       google.DefaultOAuthScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.example.com/o/oauth2/auth",
			TokenURL: "http://127.0.0.1:1/token",
		},
	}
	return google.NewAuthorizer(conf, store, pending), pending
}

func TestUploadReport_EndToEnd(t *testing.T) {
	ctx := context.Background()
	store := credentials.NewMemoryStore()
	require.NoError(t, store.Save(ctx, &credentials.TokenRecord{
		AccessToken:  "live-token",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	}))
	auth, _ := newAuthorizer(t, store)

	srv := drivetest.NewServer("live-token")
	t.Cleanup(srv.Close)
	client, err := drive.NewClient(ctx, auth, auth,
		drive.WithEndpoint(srv.Endpoint()),
		drive.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	u := NewUploader(client, auth, WithFolderLayout(LayoutDate), WithRootFolder("ECG Reports"))

	out, err := u.UploadReport(ctx, Report{PDF: testPDF, PatientID: "P123", Timestamp: reportTime})
	require.NoError(t, err)
	require.False(t, out.ConsentRequired())
	assert.Equal(t, "P123_20240115_103000.pdf", out.Result.FileName)

	files := srv.Files()
	require.Len(t, files, 3) // root folder, date folder, report
	assert.Equal(t, "ECG Reports", files[0].Name)
	assert.Equal(t, "2024-01-15", files[1].Name)
	assert.Equal(t, []string{files[0].ID}, files[1].Parents)
	assert.Equal(t, files[1].ID, out.Result.ParentFolderID)
	assert.Equal(t, testPDF, files[2].Content)

	// A second report the same day reuses both folders
	_, err = u.UploadReport(ctx, Report{PDF: testPDF, PatientID: "P124", Timestamp: reportTime.Add(time.Hour)})
	require.NoError(t, err)
	assert.Len(t, srv.Files(), 4)
}

func TestUploadReport_ConsentRequiredWithoutToken(t *testing.T) {
	ctx := context.Background()
	auth, pending := newAuthorizer(t, credentials.NewMemoryStore())

	srv := drivetest.NewServer("")
	t.Cleanup(srv.Close)
	client, err := drive.NewClient(ctx, auth, auth,
		drive.WithEndpoint(srv.Endpoint()),
		drive.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	u := NewUploader(client, auth, WithFolderLayout(LayoutPatient))

	states := make(map[string]bool)
	for i := 0; i < 2; i++ {
		out, err := u.UploadReport(ctx, Report{PDF: testPDF, PatientID: "P123", Timestamp: reportTime})
		require.NoError(t, err)
		require.True(t, out.ConsentRequired())
		assert.Nil(t, out.Result)

		parsed, err := url.Parse(out.ConsentURL)
		require.NoError(t, err)
		assert.Equal(t, redirectURI, parsed.Query().Get("redirect_uri"))

		state := parsed.Query().Get("state")
		require.NotEmpty(t, state)
		assert.False(t, states[state], "consent URLs must carry a fresh state")
		states[state] = true
	}

	n, err := pending.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, 0, srv.Calls(drivetest.CallList))
	assert.Equal(t, 0, srv.Calls(drivetest.CallUpload))
}

func TestUploadReport_Layouts(t *testing.T) {
	tests := []struct {
		name       string
		opts       []Option
		patientID  string
		wantName   string
		wantFolder []string // folder keys created, in "parent/name" form
	}{
		{
			name:      "flat",
			patientID: "P123",
			wantName:  "P123_20240115_103000.pdf",
		},
		{
			name:       "date",
			opts:       []Option{WithFolderLayout(LayoutDate)},
			patientID:  "P123",
			wantName:   "P123_20240115_103000.pdf",
			wantFolder: []string{"/2024-01-15"},
		},
		{
			name:       "patient",
			opts:       []Option{WithFolderLayout(LayoutPatient)},
			patientID:  "P123",
			wantName:   "P123_20240115_103000.pdf",
			wantFolder: []string{"/P123"},
		},
		{
			name:       "patient without id falls back to date",
			opts:       []Option{WithFolderLayout(LayoutPatient)},
			wantName:   "ecg_report_20240115_103000.pdf",
			wantFolder: []string{"/2024-01-15"},
		},
		{
			name:       "root folder only",
			opts:       []Option{WithRootFolder("ECG")},
			wantName:   "ecg_report_20240115_103000.pdf",
			wantFolder: []string{"/ECG"},
		},
		{
			name:       "root and date",
			opts:       []Option{WithRootFolder("ECG"), WithFolderLayout(LayoutDate)},
			patientID:  "P9",
			wantName:   "P9_20240115_103000.pdf",
			wantFolder: []string{"/ECG", "folder-1/2024-01-15"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fd := newFakeDrive()
			u := NewUploader(fd, &fakeConsent{}, tt.opts...)

			out, err := u.UploadReport(context.Background(), Report{PDF: testPDF, PatientID: tt.patientID, Timestamp: reportTime})
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, out.Result.FileName)

			require.Len(t, fd.uploads, 1)
			var keys []string
			for k := range fd.folders {
				keys = append(keys, k)
			}
			assert.ElementsMatch(t, tt.wantFolder, keys)

			if len(tt.wantFolder) == 0 {
				assert.Empty(t, fd.uploads[0].parent)
			} else {
				last := tt.wantFolder[len(tt.wantFolder)-1]
				assert.Equal(t, fd.folders[last], fd.uploads[0].parent)
			}
		})
	}
}

func TestUploadReport_GrantRevokedAtGoogle(t *testing.T) {
	ctx := context.Background()

	// Google refuses the refresh token of a grant revoked in the account settings
	var refreshCalls atomic.Int32
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`)
	}))
	t.Cleanup(tokenSrv.Close)

	store := credentials.NewMemoryStore()
	require.NoError(t, store.Save(ctx, &credentials.TokenRecord{
		AccessToken:  "revoked-access",
		RefreshToken: "revoked-refresh",
		Expiry:       time.Now().Add(time.Hour),
	}))

	pending := google.NewMemoryPendingStore(nil)
	t.Cleanup(pending.Stop)
	auth := google.NewAuthorizer(&oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  redirectURI,
		Scopes:       google.DefaultOAuthScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://accounts.example.com/o/oauth2/auth",
			TokenURL:  tokenSrv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}, store, pending, google.WithHTTPClient(tokenSrv.Client()))

	// Drive no longer accepts the unexpired access token
	srv := drivetest.NewServer("some-other-token")
	t.Cleanup(srv.Close)
	client, err := drive.NewClient(ctx, auth, auth,
		drive.WithEndpoint(srv.Endpoint()),
		drive.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	u := NewUploader(client, auth)

	out, err := u.UploadReport(ctx, Report{PDF: testPDF, PatientID: "P123", Timestamp: reportTime})
	require.NoError(t, err)
	require.True(t, out.ConsentRequired())

	consent, err := url.Parse(out.ConsentURL)
	require.NoError(t, err)
	assert.Equal(t, redirectURI, consent.Query().Get("redirect_uri"))

	assert.Equal(t, int32(1), refreshCalls.Load())
	assert.Equal(t, 1, srv.Calls(drivetest.CallUpload))
	assert.Empty(t, srv.Files())

	rec, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec, "rejected grant is cleared")
}

func TestUploadReport_ReauthorizationDuringUpload(t *testing.T) {
	fd := newFakeDrive()
	fd.uploadErr = google.ErrReauthorizationRequired
	consent := &fakeConsent{url: "https://accounts.example.com/consent?state=abc"}

	u := NewUploader(fd, consent, WithFolderLayout(LayoutDate))

	out, err := u.UploadReport(context.Background(), Report{PDF: testPDF, Timestamp: reportTime})
	require.NoError(t, err)
	assert.Equal(t, consent.url, out.ConsentURL)
	assert.Equal(t, 1, consent.calls)
}

func TestUploadReport_ReauthorizationDuringFolderLookup(t *testing.T) {
	fd := newFakeDrive()
	fd.folderErr = fmt.Errorf("lookup: %w", google.ErrReauthorizationRequired)
	consent := &fakeConsent{url: "https://accounts.example.com/consent?state=abc"}

	u := NewUploader(fd, consent, WithRootFolder("ECG"))

	out, err := u.UploadReport(context.Background(), Report{PDF: testPDF, Timestamp: reportTime})
	require.NoError(t, err)
	assert.True(t, out.ConsentRequired())
	assert.Empty(t, fd.uploads)
}

func TestUploadReport_ConsentIssueFails(t *testing.T) {
	fd := newFakeDrive()
	fd.uploadErr = google.ErrReauthorizationRequired
	consent := &fakeConsent{err: errors.New("redis unavailable")}

	u := NewUploader(fd, consent)

	_, err := u.UploadReport(context.Background(), Report{PDF: testPDF, Timestamp: reportTime})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis unavailable")
}

func TestUploadReport_Errors(t *testing.T) {
	quota := &drive.RemoteRejectedError{Op: "upload", Status: http.StatusForbidden, Reason: "storageQuotaExceeded"}
	transient := &google.TransientError{Op: "drive upload", Err: errors.New("503")}

	tests := []struct {
		name    string
		report  Report
		upload  error
		wantErr error
	}{
		{"empty report", Report{Timestamp: reportTime}, nil, ErrEmptyReport},
		{"quota", Report{PDF: testPDF, Timestamp: reportTime}, quota, drive.ErrQuotaExceeded},
		{"transient", Report{PDF: testPDF, Timestamp: reportTime}, transient, google.ErrTransientNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fd := newFakeDrive()
			fd.uploadErr = tt.upload
			consent := &fakeConsent{}

			out, err := NewUploader(fd, consent).UploadReport(context.Background(), tt.report)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, consent.calls, "only reauthorization triggers consent")
		})
	}
}

func TestUploadReport_DefaultTimestamp(t *testing.T) {
	fd := newFakeDrive()
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	u := NewUploader(fd, &fakeConsent{}, WithClock(func() time.Time { return now }))

	out, err := u.UploadReport(context.Background(), Report{PDF: testPDF})
	require.NoError(t, err)
	assert.Equal(t, "ecg_report_20250301_080000.pdf", out.Result.FileName)
}
