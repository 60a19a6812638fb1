package chronicles

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loggerchronicles/chronicles_sdk_go/internal/chroniclesapi"
	"github.com/loggerchronicles/chronicles_sdk_go/internal/httpx"
)

// TimestampLayout is the calendar date format used for the backup timestamp.
const TimestampLayout = "2006-01-02"

// Option configures the transport used by a Client.
type Option = httpx.Option

// WithHTTPClient overrides the *http.Client used for requests. The library
// sets no timeout of its own; supply a client with one if needed.
func WithHTTPClient(h *http.Client) Option {
	return httpx.WithHTTPClient(h)
}

// WithHeaders adds headers sent with every request.
func WithHeaders(h http.Header) Option {
	return httpx.WithHeaders(h)
}

// WithLogger sets the logger used for request tracing. Defaults to zap.L().
func WithLogger(l *zap.Logger) Option {
	return httpx.WithLogger(l)
}

// Client provides HTTP access to the logger chronicles API. It holds no
// mutable state and is safe for concurrent use.
type Client struct {
	cfg  Config
	http *httpx.Client
}

// New constructs a Client. It fails with *ConfigurationError when the host
// is missing.
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, &ConfigurationError{Field: "host", Reason: "is required"}
	}
	cfg = cfg.normalized()
	cl, err := httpx.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, &ConfigurationError{Field: "host", Reason: err.Error()}
	}
	return &Client{cfg: cfg, http: cl}, nil
}

// Config returns a copy of the normalised configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// BackupURL returns the upload endpoint.
func (c *Client) BackupURL() string {
	return c.apiRoot() + "/backup"
}

// NavigateURL returns the listing endpoint for path.
func (c *Client) NavigateURL(path string) string {
	return appendSegments(c.apiRoot()+"/backup/", path)
}

// DownloadURL returns the file endpoint for path.
func (c *Client) DownloadURL(path string) string {
	return appendSegments(c.apiRoot()+"/file/", path)
}

func (c *Client) apiRoot() string {
	return c.cfg.Host + "/api/" + c.cfg.APIVersion
}

// appendSegments splits path on every "/" and escapes each piece on its own,
// terminating every piece with a slash.
func appendSegments(base, path string) string {
	if path == "" {
		return base
	}
	var b strings.Builder
	b.WriteString(base)
	for _, segment := range strings.Split(path, "/") {
		// PathEscape keeps sub-delims such as $&+:=@ literal; they are legal
		// in a path segment and servers decode them the same as %XX forms.
		b.WriteString(url.PathEscape(segment))
		b.WriteByte('/')
	}
	return b.String()
}

// Backup uploads the file at filePath together with the logger metadata as a
// single multipart POST. An unreadable file yields *FileAccessError before
// any request is made.
func (c *Client) Backup(ctx context.Context, loggerTypeCode, loggerSerial string, timestamp time.Time, filePath string) (*PostResult, error) {
	if c == nil || c.http == nil {
		return nil, fmt.Errorf("chronicles: client is nil")
	}
	f, size, err := openBackupFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	form := backupForm{
		loggerTypeCode: loggerTypeCode,
		loggerSerial:   loggerSerial,
		timestamp:      timestamp,
		path:           filePath,
		filename:       filepath.Base(filePath),
		file:           f,
		size:           size,
	}
	return c.postBackup(ctx, form)
}

type backupForm struct {
	loggerTypeCode string
	loggerSerial   string
	timestamp      time.Time
	path           string
	filename       string
	file           io.Reader
	size           int64
}

// encode lays the multipart framing out around the file so the body length
// is known before the first byte is sent.
func (f backupForm) encode(file io.Reader) (contentType string, body io.Reader, length int64, err error) {
	head := new(bytes.Buffer)
	mw := multipart.NewWriter(head)
	fields := [][2]string{
		{"loggerTypeCode", f.loggerTypeCode},
		{"loggerSerial", f.loggerSerial},
		{"timestamp", f.timestamp.Format(TimestampLayout)},
	}
	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return "", nil, 0, err
		}
	}
	if _, err := mw.CreateFormFile("file", f.filename); err != nil {
		return "", nil, 0, err
	}
	// Matches what multipart.Writer.Close emits after the last part.
	tail := "\r\n--" + mw.Boundary() + "--\r\n"

	length = int64(head.Len()) + f.size + int64(len(tail))
	body = io.MultiReader(head, io.LimitReader(file, f.size), strings.NewReader(tail))
	return mw.FormDataContentType(), body, length, nil
}

// readRecorder remembers the first read error of the wrapped reader. The
// transport may still be reading after Do returns, hence the lock.
type readRecorder struct {
	r   io.Reader
	mu  sync.Mutex
	err error
}

func (r *readRecorder) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && err != io.EOF {
		r.mu.Lock()
		if r.err == nil {
			r.err = err
		}
		r.mu.Unlock()
	}
	return n, err
}

func (r *readRecorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (c *Client) postBackup(ctx context.Context, form backupForm) (*PostResult, error) {
	endpoint := c.BackupURL()
	file := &readRecorder{r: form.file}
	contentType, body, length, err := form.encode(file)
	if err != nil {
		return nil, fmt.Errorf("chronicles: encode backup form: %w", err)
	}

	header := c.authHeader()
	header.Set("Content-Type", contentType)
	resp, err := c.http.Do(ctx, &httpx.Request{
		Method:        http.MethodPost,
		Path:          endpoint,
		Header:        header,
		Body:          body,
		ContentLength: length,
	})
	if err != nil {
		if readErr := file.Err(); readErr != nil {
			return nil, &FileAccessError{Path: form.path, Err: readErr}
		}
		return nil, &TransportError{Method: http.MethodPost, URL: endpoint, Err: err}
	}

	respBody, err := httpx.ReadAllAndClose(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: http.MethodPost, URL: endpoint, Err: err}
	}
	result := &PostResult{}
	result.StatusCode = resp.StatusCode
	if chroniclesapi.Succeeded(resp.StatusCode) {
		result.Errors = nil
	} else {
		result.Errors = chroniclesapi.DecodeErrors(resp.StatusCode, respBody)
	}
	return result, nil
}

// Navigate lists the entries stored under path. An empty path lists the
// root of the backup tree.
func (c *Client) Navigate(ctx context.Context, path string) (*NavigateResult, error) {
	if c == nil || c.http == nil {
		return nil, fmt.Errorf("chronicles: client is nil")
	}
	endpoint := c.NavigateURL(path)
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	body, err := httpx.ReadAllAndClose(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: http.MethodGet, URL: endpoint, Err: err}
	}

	result := &NavigateResult{}
	result.StatusCode = resp.StatusCode
	if !chroniclesapi.Succeeded(resp.StatusCode) {
		result.Errors = chroniclesapi.DecodeErrors(resp.StatusCode, body)
		result.Entries = nil
		return result, nil
	}

	entries, err := chroniclesapi.DecodeEntries(body)
	if err != nil {
		return nil, fmt.Errorf("chronicles: navigate %q: %w", path, err)
	}
	result.Entries = make([]NavigateItem, 0, len(entries))
	for _, e := range entries {
		result.Entries = append(result.Entries, NavigateItem{Name: e.Name, IsFile: e.IsFile})
	}
	result.Errors = nil
	return result, nil
}

// Download fetches the file stored at path and buffers its content.
func (c *Client) Download(ctx context.Context, path string) (*DownloadResult, error) {
	if c == nil || c.http == nil {
		return nil, fmt.Errorf("chronicles: client is nil")
	}
	endpoint := c.DownloadURL(path)
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	body, err := httpx.ReadAllAndClose(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: http.MethodGet, URL: endpoint, Err: err}
	}

	result := &DownloadResult{}
	result.StatusCode = resp.StatusCode
	if !chroniclesapi.Succeeded(resp.StatusCode) {
		result.Errors = chroniclesapi.DecodeErrors(resp.StatusCode, body)
		return result, nil
	}
	result.Content = body
	result.MimeType = resp.Header.Get("Content-Type")
	result.Errors = nil
	return result, nil
}

// DownloadTo behaves like Download but streams a successful body into w
// instead of buffering it; the returned result leaves Content nil. The
// number of bytes written is returned alongside.
func (c *Client) DownloadTo(ctx context.Context, path string, w io.Writer) (*DownloadResult, int64, error) {
	if c == nil || c.http == nil {
		return nil, 0, fmt.Errorf("chronicles: client is nil")
	}
	if w == nil {
		return nil, 0, fmt.Errorf("chronicles: writer is nil")
	}
	endpoint := c.DownloadURL(path)
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, 0, err
	}

	result := &DownloadResult{}
	result.StatusCode = resp.StatusCode
	if !chroniclesapi.Succeeded(resp.StatusCode) {
		body, err := httpx.ReadAllAndClose(resp.Body)
		if err != nil {
			return nil, 0, &TransportError{Method: http.MethodGet, URL: endpoint, Err: err}
		}
		result.Errors = chroniclesapi.DecodeErrors(resp.StatusCode, body)
		return result, 0, nil
	}

	defer httpx.DrainAndClose(resp.Body)
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return nil, n, &TransportError{Method: http.MethodGet, URL: endpoint, Err: err}
	}
	result.MimeType = resp.Header.Get("Content-Type")
	result.Errors = nil
	return result, n, nil
}

func (c *Client) get(ctx context.Context, endpoint string) (*http.Response, error) {
	resp, err := c.http.Do(ctx, &httpx.Request{
		Method: http.MethodGet,
		Path:   endpoint,
		Header: c.authHeader(),
	})
	if err != nil {
		return nil, &TransportError{Method: http.MethodGet, URL: endpoint, Err: err}
	}
	return resp, nil
}

func (c *Client) authHeader() http.Header {
	h := make(http.Header)
	if c.cfg.APIKey != "" {
		h.Set(APIKeyHeader, c.cfg.APIKey)
	}
	return h
}

func openBackupFile(path string) (*os.File, int64, error) {
	if strings.TrimSpace(path) == "" {
		return nil, 0, &FileAccessError{Path: path, Err: os.ErrNotExist}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, &FileAccessError{Path: path, Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, &FileAccessError{Path: path, Err: err}
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, 0, &FileAccessError{Path: path, Err: fmt.Errorf("is a directory")}
	}
	return f, info.Size(), nil
}
