// Package drivetest provides an in-memory fake of the parts of the Google
// Drive v3 REST API used by package drive, for use in tests.
package drivetest

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	drive "google.golang.org/api/drive/v3"
)

// Call kinds counted by Server and accepted by FailNext.
const (
	CallUpload = "upload" // multipart upload or resumable session start
	CallChunk  = "chunk"  // resumable session chunk
	CallList   = "list"
	CallCreate = "create" // metadata-only create, i.e. folders
)

// File is a file or folder held by the fake.
type File struct {
	ID          string
	Name        string
	MimeType    string
	Parents     []string
	Content     []byte
	CreatedTime time.Time
	Trashed     bool
}

type failure struct {
	status int
	reason string
}

type session struct {
	meta    drive.File
	content []byte
}

// Server is a fake Drive API. Start it with NewServer and point the client
// at Endpoint().
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	token    string
	files    []*File
	nextID   int
	calls    map[string]int
	failures map[string][]failure
	sessions map[string]*session
	tokens   []string
}

// NewServer starts a fake that requires "Bearer <token>" on every request.
// An empty token accepts any bearer token.
func NewServer(token string) *Server {
	s := &Server{
		token:    token,
		calls:    make(map[string]int),
		failures: make(map[string][]failure),
		sessions: make(map[string]*session),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/upload/drive/v3/files", s.handleUpload)
	mux.HandleFunc("/upload/session/", s.handleChunk)
	mux.HandleFunc("/drive/v3/files", s.handleFiles)
	s.Server = httptest.NewServer(mux)

	return s
}

// Endpoint is the Drive API base URL to pass to drive.WithEndpoint.
func (s *Server) Endpoint() string {
	return s.URL + "/drive/v3/"
}

// SetToken changes the bearer token the fake expects.
func (s *Server) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// FailNext makes the next call of kind fail with status and an error reason
// such as "storageQuotaExceeded" or "backendError".
func (s *Server) FailNext(kind string, status int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[kind] = append(s.failures[kind], failure{status: status, reason: reason})
}

// Calls returns how many requests of kind were received, failed ones included.
func (s *Server) Calls(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[kind]
}

// Tokens returns the bearer tokens seen, in order.
func (s *Server) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}

// Files returns a snapshot of every stored file and folder.
func (s *Server) Files() []File {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]File, 0, len(s.files))
	for _, f := range s.files {
		cp := *f
		cp.Parents = append([]string(nil), f.Parents...)
		cp.Content = append([]byte(nil), f.Content...)
		out = append(out, cp)
	}
	return out
}

// AddFile stores a file directly, bypassing the API. An empty parent means
// My Drive root.
func (s *Server) AddFile(name, mimeType, parent string, content []byte) File {
	s.mu.Lock()
	defer s.mu.Unlock()

	var parents []string
	if parent != "" {
		parents = []string{parent}
	}
	return *s.addFileLocked(drive.File{Name: name, MimeType: mimeType, Parents: parents}, content)
}

func (s *Server) addFileLocked(meta drive.File, content []byte) *File {
	s.nextID++
	f := &File{
		ID:          fmt.Sprintf("file-%03d", s.nextID),
		Name:        meta.Name,
		MimeType:    meta.MimeType,
		Parents:     meta.Parents,
		Content:     content,
		CreatedTime: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC).Add(time.Duration(s.nextID) * time.Second),
	}
	if len(f.Parents) == 0 {
		f.Parents = []string{"root"}
	}
	s.files = append(s.files, f)
	return f
}

// begin authenticates the request, counts it and applies queued failures.
// It returns false when a response has already been written.
func (s *Server) begin(w http.ResponseWriter, r *http.Request, kind string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[kind]++

	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || (s.token != "" && token != s.token) {
		writeError(w, http.StatusUnauthorized, "authError", "Invalid Credentials")
		return false
	}
	s.tokens = append(s.tokens, token)

	if queued := s.failures[kind]; len(queued) > 0 {
		f := queued[0]
		s.failures[kind] = queued[1:]
		writeError(w, f.status, f.reason, "injected failure: "+f.reason)
		return false
	}
	return true
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "methodNotAllowed", r.Method)
		return
	}
	if !s.begin(w, r, CallUpload) {
		return
	}

	switch uploadType := r.URL.Query().Get("uploadType"); uploadType {
	case "multipart":
		meta, content, err := readMultipart(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "badContent", err.Error())
			return
		}
		s.mu.Lock()
		f := s.addFileLocked(meta, content)
		s.mu.Unlock()
		writeFile(w, f)

	case "resumable":
		var meta drive.File
		if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
			writeError(w, http.StatusBadRequest, "parseError", err.Error())
			return
		}
		s.mu.Lock()
		id := strconv.Itoa(len(s.sessions) + 1)
		s.sessions[id] = &session{meta: meta}
		s.mu.Unlock()
		w.Header().Set("Location", s.URL+"/upload/session/"+id)
		w.WriteHeader(http.StatusOK)

	default:
		writeError(w, http.StatusBadRequest, "invalidUploadType", uploadType)
	}
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	if !s.begin(w, r, CallChunk) {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/upload/session/")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "badContent", err.Error())
		return
	}

	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "notFound", "unknown upload session")
		return
	}
	sess.content = append(sess.content, body...)
	received := len(sess.content)

	// "bytes 0-262143/*" for intermediate chunks, "/<total>" on the last one
	final := !strings.HasSuffix(r.Header.Get("Content-Range"), "/*")
	var f *File
	if final {
		f = s.addFileLocked(sess.meta, sess.content)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if final {
		writeFile(w, f)
		return
	}

	w.Header().Set("Range", fmt.Sprintf("bytes=0-%d", received-1))
	if r.Header.Get("X-GUploader-No-308") == "yes" {
		w.Header().Set("X-Http-Status-Code-Override", "308")
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusPermanentRedirect)
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !s.begin(w, r, CallList) {
			return
		}
		s.list(w, r)

	case http.MethodPost:
		if !s.begin(w, r, CallCreate) {
			return
		}
		var meta drive.File
		if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
			writeError(w, http.StatusBadRequest, "parseError", err.Error())
			return
		}
		s.mu.Lock()
		f := s.addFileLocked(meta, nil)
		s.mu.Unlock()
		writeFile(w, f)

	default:
		writeError(w, http.StatusMethodNotAllowed, "methodNotAllowed", r.Method)
	}
}

var (
	nameRe   = regexp.MustCompile(`name = '((?:[^'\\]|\\.)*)'`)
	parentRe = regexp.MustCompile(`'((?:[^'\\]|\\.)*)' in parents`)
	mimeRe   = regexp.MustCompile(`mimeType = '([^']*)'`)

	unescape = strings.NewReplacer(`\'`, `'`, `\\`, `\`)
)

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if pageSize <= 0 {
		pageSize = 100
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("pageToken"))

	var name, parent, mimeType string
	if m := nameRe.FindStringSubmatch(q); m != nil {
		name = unescape.Replace(m[1])
	}
	if m := parentRe.FindStringSubmatch(q); m != nil {
		parent = unescape.Replace(m[1])
	}
	if m := mimeRe.FindStringSubmatch(q); m != nil {
		mimeType = m[1]
	}
	excludeTrashed := strings.Contains(q, "trashed = false")

	s.mu.Lock()
	var matched []*drive.File
	for _, f := range s.files {
		if name != "" && f.Name != name {
			continue
		}
		if mimeType != "" && f.MimeType != mimeType {
			continue
		}
		if parent != "" && !slices.Contains(f.Parents, parent) {
			continue
		}
		if excludeTrashed && f.Trashed {
			continue
		}
		matched = append(matched, toDrive(f))
	}
	s.mu.Unlock()

	resp := &drive.FileList{Files: []*drive.File{}}
	if offset < len(matched) {
		end := min(offset+pageSize, len(matched))
		resp.Files = matched[offset:end]
		if end < len(matched) {
			resp.NextPageToken = strconv.Itoa(end)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func readMultipart(r *http.Request) (drive.File, []byte, error) {
	var meta drive.File

	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return meta, nil, err
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	part, err := mr.NextPart()
	if err != nil {
		return meta, nil, fmt.Errorf("metadata part: %w", err)
	}
	if err := json.NewDecoder(part).Decode(&meta); err != nil {
		return meta, nil, fmt.Errorf("metadata part: %w", err)
	}

	part, err = mr.NextPart()
	if err != nil {
		return meta, nil, fmt.Errorf("media part: %w", err)
	}
	content, err := io.ReadAll(part)
	if err != nil {
		return meta, nil, fmt.Errorf("media part: %w", err)
	}
	return meta, content, nil
}

func toDrive(f *File) *drive.File {
	return &drive.File{
		Id:          f.ID,
		Name:        f.Name,
		MimeType:    f.MimeType,
		Parents:     f.Parents,
		Size:        int64(len(f.Content)),
		CreatedTime: f.CreatedTime.Format(time.RFC3339),
		WebViewLink: "https://drive.google.com/file/d/" + f.ID + "/view",
		Trashed:     f.Trashed,
	}
}

func writeFile(w http.ResponseWriter, f *File) {
	writeJSON(w, http.StatusOK, toDrive(f))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": message,
			"errors": []map[string]string{
				{"domain": "global", "reason": reason, "message": message},
			},
		},
	})
}
