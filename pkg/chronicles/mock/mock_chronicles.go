// Package mock implements the logger chronicles REST API in memory. It backs
// the client tests, the "mock" runtime mode and the sandbox server.
package mock

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loggerchronicles/chronicles_sdk_go/internal/devseed"
)

// BaseURL is the host used by clients wired to Transport.
const BaseURL = "http://chronicles.mock"

const (
	apiKeyHeader    = "X-API-Key"
	timestampLayout = "2006-01-02"
	maxFormMemory   = 32 << 20
)

type fileEntry struct {
	data        []byte
	contentType string
	modTime     time.Time
}

// Option configures a Mock.
type Option func(*Mock)

// WithAPIKey makes the mock reject requests that do not carry key.
func WithAPIKey(key string) Option {
	return func(m *Mock) {
		m.apiKey = key
	}
}

// WithAPIVersion sets the version segment served by the mock. Defaults to "v1".
func WithAPIVersion(version string) Option {
	return func(m *Mock) {
		if strings.TrimSpace(version) != "" {
			m.version = version
		}
	}
}

// WithMaxUploadSize limits the size of backup request bodies. Zero disables
// the limit.
func WithMaxUploadSize(n int64) Option {
	return func(m *Mock) {
		m.maxUpload = n
	}
}

// WithLogger sets the logger used to trace handled requests.
func WithLogger(l *zap.Logger) Option {
	return func(m *Mock) {
		if l != nil {
			m.logger = l
		}
	}
}

// Mock is an in-memory chronicles service. Files live in a tree addressed by
// slash separated paths; uploads are stored under
// {loggerTypeCode}/{loggerSerial}/{timestamp}/{filename}.
type Mock struct {
	mu        sync.RWMutex
	files     map[string]*fileEntry
	apiKey    string
	version   string
	maxUpload int64
	logger    *zap.Logger
	now       func() time.Time
}

// New constructs an empty service.
func New(opts ...Option) *Mock {
	m := &Mock{
		files:   make(map[string]*fileEntry),
		version: "v1",
		logger:  zap.L(),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Seed loads files from seed entries.
func (m *Mock) Seed(entries []devseed.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		key := normalizePath(e.Path)
		if key == "" {
			return fmt.Errorf("mock chronicles: seed entry missing path")
		}
		data, err := e.Content()
		if err != nil {
			return fmt.Errorf("mock chronicles: %w", err)
		}
		if m.conflictsLocked(key) {
			return fmt.Errorf("mock chronicles: seed path %q collides with the tree", e.Path)
		}
		m.files[key] = &fileEntry{
			data:        append([]byte(nil), data...),
			contentType: e.ContentType,
			modTime:     m.now(),
		}
	}
	return nil
}

// Store saves data under p, replacing any previous file.
func (m *Mock) Store(p string, data []byte, contentType string) error {
	key := normalizePath(p)
	if key == "" {
		return fmt.Errorf("mock chronicles: path is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflictsLocked(key) {
		return fmt.Errorf("mock chronicles: %q collides with an existing entry", p)
	}
	m.files[key] = &fileEntry{
		data:        append([]byte(nil), data...),
		contentType: contentType,
		modTime:     m.now(),
	}
	return nil
}

// File returns a copy of the file stored at p.
func (m *Mock) File(p string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.files[normalizePath(p)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), entry.data...), true
}

// Paths lists every stored file path in lexical order.
func (m *Mock) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Transport returns a RoundTripper that serves requests from the mock
// without opening sockets.
func (m *Mock) Transport() http.RoundTripper {
	return roundTripper{handler: m}
}

// HTTPClient returns an *http.Client wired to Transport.
func (m *Mock) HTTPClient() *http.Client {
	return &http.Client{Transport: m.Transport()}
}

type roundTripper struct {
	handler http.Handler
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}
	rec := httptest.NewRecorder()
	rt.handler.ServeHTTP(rec, req)
	if req.Body != nil {
		_ = req.Body.Close()
	}
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}

// ServeHTTP implements the REST surface.
func (m *Mock) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.logger.Debug("mock chronicles request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.EscapedPath()))

	if m.apiKey != "" && r.Header.Get(apiKeyHeader) != m.apiKey {
		writeMessage(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	segments, err := splitEscaped(r.URL.EscapedPath())
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(segments) < 3 || segments[0] != "api" {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	if segments[1] != m.version {
		writeMessage(w, http.StatusNotFound, fmt.Sprintf("unsupported api version %q", segments[1]))
		return
	}
	rest := segments[3:]

	switch segments[2] {
	case "backup":
		switch r.Method {
		case http.MethodPost:
			if len(rest) != 0 {
				writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
				return
			}
			m.handleBackup(w, r)
		case http.MethodGet:
			m.handleNavigate(w, rest)
		default:
			writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case "file":
		if r.Method != http.MethodGet {
			writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		m.handleFile(w, rest)
	default:
		writeMessage(w, http.StatusNotFound, "not found")
	}
}

func (m *Mock) handleBackup(w http.ResponseWriter, r *http.Request) {
	if m.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, m.maxUpload)
	}
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeMessage(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", maxErr.Limit))
			return
		}
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	problems := map[string]string{}
	typeCode := strings.TrimSpace(r.FormValue("loggerTypeCode"))
	serial := strings.TrimSpace(r.FormValue("loggerSerial"))
	rawTimestamp := strings.TrimSpace(r.FormValue("timestamp"))
	if typeCode == "" || strings.Contains(typeCode, "/") {
		problems["loggerTypeCode"] = "a non-empty value without slashes is required"
	}
	if serial == "" || strings.Contains(serial, "/") {
		problems["loggerSerial"] = "a non-empty value without slashes is required"
	}
	if _, err := time.Parse(timestampLayout, rawTimestamp); err != nil {
		problems["timestamp"] = "expected a date formatted as YYYY-MM-DD"
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		problems["file"] = "a file part is required"
	}
	if len(problems) > 0 {
		if file != nil {
			_ = file.Close()
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "validation failed",
			"errors":  problems,
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	name := path.Base(header.Filename)
	if name == "" || name == "." || name == "/" {
		name = "backup.bin"
	}
	stored := strings.Join([]string{typeCode, serial, rawTimestamp, name}, "/")
	if err := m.Store(stored, data, header.Header.Get("Content-Type")); err != nil {
		writeMessage(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"path": stored, "size": len(data)})
}

type navigateEntry struct {
	Name   string `json:"name"`
	IsFile bool   `json:"isfile"`
}

func (m *Mock) handleNavigate(w http.ResponseWriter, segments []string) {
	dir := strings.Join(segments, "/")

	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.files[dir]; ok && dir != "" {
		writeMessage(w, http.StatusNotFound, "not a directory")
		return
	}
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}
	dirs := map[string]struct{}{}
	var files []string
	for key := range m.files {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if idx := strings.Index(rest, "/"); idx >= 0 {
			dirs[rest[:idx]] = struct{}{}
			continue
		}
		files = append(files, rest)
	}
	if dir != "" && len(dirs) == 0 && len(files) == 0 {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}

	dirNames := make([]string, 0, len(dirs))
	for d := range dirs {
		dirNames = append(dirNames, d)
	}
	sort.Strings(dirNames)
	sort.Strings(files)

	entries := make([]navigateEntry, 0, len(dirNames)+len(files))
	for _, d := range dirNames {
		entries = append(entries, navigateEntry{Name: d, IsFile: false})
	}
	for _, f := range files {
		entries = append(entries, navigateEntry{Name: f, IsFile: true})
	}
	writeJSON(w, http.StatusOK, entries)
}

func (m *Mock) handleFile(w http.ResponseWriter, segments []string) {
	key := strings.Join(segments, "/")
	m.mu.RLock()
	entry, ok := m.files[key]
	m.mu.RUnlock()
	if !ok || key == "" {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	contentType := entry.contentType
	if contentType == "" {
		contentType = http.DetectContentType(entry.data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Last-Modified", entry.modTime.Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(entry.data)
}

func (m *Mock) conflictsLocked(key string) bool {
	prefix := key + "/"
	for existing := range m.files {
		if strings.HasPrefix(existing, prefix) {
			return true
		}
	}
	// A stored file cannot also act as a parent directory.
	parts := strings.Split(key, "/")
	for i := 1; i < len(parts); i++ {
		if _, ok := m.files[strings.Join(parts[:i], "/")]; ok {
			return true
		}
	}
	return false
}

// splitEscaped splits an escaped URL path into decoded segments, dropping the
// empty ones produced by leading, trailing or doubled slashes.
func splitEscaped(escaped string) ([]string, error) {
	var out []string
	for _, raw := range strings.Split(escaped, "/") {
		if raw == "" {
			continue
		}
		seg, err := url.PathUnescape(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid path segment %q", raw)
		}
		out = append(out, seg)
	}
	return out, nil
}

func normalizePath(p string) string {
	parts := strings.Split(p, "/")
	kept := parts[:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, "/")
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
