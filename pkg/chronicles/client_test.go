package chronicles_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loggerchronicles/chronicles_sdk_go/pkg/chronicles"
)

func newClient(t *testing.T, host string, apiKey string) *chronicles.Client {
	t.Helper()
	client, err := chronicles.New(chronicles.Config{Host: host, APIKey: apiKey})
	require.NoError(t, err)
	return client
}

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestNewRequiresHost(t *testing.T) {
	for _, host := range []string{"", "   "} {
		_, err := chronicles.New(chronicles.Config{Host: host, APIKey: "k"})
		var cfgErr *chronicles.ConfigurationError
		require.ErrorAs(t, err, &cfgErr, "host %q", host)
		assert.Equal(t, "host", cfgErr.Field)
	}
}

func TestNewDefaultsAPIVersion(t *testing.T) {
	tests := []struct {
		version string
		want    string
	}{
		{"", "v1"},
		{"   ", "v1"},
		{"v2", "v2"},
	}
	for _, tc := range tests {
		client, err := chronicles.New(chronicles.Config{Host: "http://x", APIVersion: tc.version})
		require.NoError(t, err)
		assert.Equal(t, tc.want, client.Config().APIVersion)
	}
}

func TestEndpointURLs(t *testing.T) {
	client := newClient(t, "http://x", "")

	assert.Equal(t, "http://x/api/v1/backup", client.BackupURL())
	assert.Equal(t, "http://x/api/v1/backup/", client.NavigateURL(""))
	assert.Equal(t, "http://x/api/v1/backup/a/b/", client.NavigateURL("a/b"))
	assert.Equal(t, "http://x/api/v1/backup/a%20b/c/", client.NavigateURL("a b/c"))
	assert.Equal(t, "http://x/api/v1/backup/%3F%23/", client.NavigateURL("?#"))
	assert.Equal(t, "http://x/api/v1/backup//a/", client.NavigateURL("/a"))
	assert.Equal(t, "http://x/api/v1/backup/a+b:c@d=e&f$g/", client.NavigateURL("a+b:c@d=e&f$g"))
	assert.Equal(t, "http://x/api/v1/backup/x%3By%2Cz/", client.NavigateURL("x;y,z"))
	assert.Equal(t, "http://x/api/v1/file/", client.DownloadURL(""))
	assert.Equal(t, "http://x/api/v1/file/f%201/", client.DownloadURL("f 1"))
	assert.Equal(t, "http://x/api/v1/file/TL/0042/2024-03-01/data.bin/", client.DownloadURL("TL/0042/2024-03-01/data.bin"))

	v2, err := chronicles.New(chronicles.Config{Host: "https://host/prefix", APIVersion: "v2"})
	require.NoError(t, err)
	assert.Equal(t, "https://host/prefix/api/v2/backup", v2.BackupURL())
}

func TestNavigateSuccess(t *testing.T) {
	var gotKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotPath = r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"name":"a.txt","isfile":true},{"name":"2024","isfile":false}]`)
	}))
	defer srv.Close()

	client := newClient(t, srv.URL, "secret")
	res, err := client.Navigate(context.Background(), "TL/a b")
	require.NoError(t, err)

	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "/api/v1/backup/TL/a%20b/", gotPath)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Nil(t, res.Errors)
	assert.True(t, res.OK())
	assert.NoError(t, res.Err())
	assert.Equal(t, []chronicles.NavigateItem{
		{Name: "a.txt", IsFile: true},
		{Name: "2024", IsFile: false},
	}, res.Entries)
}

func TestNavigateEmptyListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	res, err := newClient(t, srv.URL, "").Navigate(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, res.Entries)
	assert.Empty(t, res.Entries)
	assert.Nil(t, res.Errors)
}

func TestNavigateFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"message":"not found"}`)
	}))
	defer srv.Close()

	res, err := newClient(t, srv.URL, "").Navigate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Nil(t, res.Entries)
	assert.Equal(t, map[string]any{"message": "not found"}, res.Errors)
	assert.False(t, res.OK())

	var remote *chronicles.RemoteError
	require.ErrorAs(t, res.Err(), &remote)
	assert.Equal(t, http.StatusNotFound, remote.StatusCode)
	assert.Contains(t, remote.Error(), `"message":"not found"`)
}

func TestNavigateMalformedListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"not":"a list"}`)
	}))
	defer srv.Close()

	res, err := newClient(t, srv.URL, "").Navigate(context.Background(), "x")
	assert.Error(t, err)
	assert.Nil(t, res)
}

func TestRequestsOmitAPIKeyWhenUnset(t *testing.T) {
	var present atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.Header["X-Api-Key"]
		present.Store(ok)
		io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL, "").Navigate(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, present.Load())
}

func TestDownloadSuccess(t *testing.T) {
	payload := []byte{0x00, 0x01, 0xfe, 0xff, 'x'}
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/x-logger; version=3")
		w.Write(payload)
	}))
	defer srv.Close()

	res, err := newClient(t, srv.URL, "k").Download(context.Background(), "f 1")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/file/f%201/", gotPath)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, payload, res.Content)
	assert.Equal(t, "application/x-logger; version=3", res.MimeType)
	assert.Nil(t, res.Errors)
}

func TestDownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"message":"forbidden","code":7}`)
	}))
	defer srv.Close()

	res, err := newClient(t, srv.URL, "k").Download(context.Background(), "a/b.bin")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Nil(t, res.Content)
	assert.Empty(t, res.MimeType)
	assert.Equal(t, map[string]any{"message": "forbidden", "code": float64(7)}, res.Errors)
}

func TestDownloadTo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/api/v1/file/ok.txt/" {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"message":"not found"}`)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "streamed")
	}))
	defer srv.Close()
	client := newClient(t, srv.URL, "")

	var buf bytes.Buffer
	res, n, err := client.DownloadTo(context.Background(), "ok.txt", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len("streamed")), n)
	assert.Equal(t, "streamed", buf.String())
	assert.Equal(t, "text/plain", res.MimeType)
	assert.Nil(t, res.Content)
	assert.Nil(t, res.Errors)

	buf.Reset()
	res, n, err = client.DownloadTo(context.Background(), "missing.txt", &buf)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, buf.Len())
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Empty(t, res.MimeType)
	assert.NotNil(t, res.Errors)
}

type receivedBackup struct {
	apiKey      string
	typeCode    string
	serial      string
	timestamp   string
	filename    string
	content     []byte
	contentType string
	length      int64
	chunked     bool
}

func backupServer(t *testing.T, status int, body string, got *receivedBackup, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		length, encoding := r.ContentLength, r.TransferEncoding
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/backup" {
			http.Error(w, "unexpected request", http.StatusTeapot)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusTeapot)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusTeapot)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if got != nil {
			*got = receivedBackup{
				apiKey:      r.Header.Get("X-API-Key"),
				typeCode:    r.FormValue("loggerTypeCode"),
				serial:      r.FormValue("loggerSerial"),
				timestamp:   r.FormValue("timestamp"),
				filename:    header.Filename,
				content:     data,
				contentType: r.Header.Get("Content-Type"),
				length:      length,
				chunked:     len(encoding) > 0,
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
}

func TestBackupSuccess(t *testing.T) {
	var got receivedBackup
	var hits atomic.Int32
	srv := backupServer(t, http.StatusCreated, `{"id":1}`, &got, &hits)
	defer srv.Close()

	path := writeTempFile(t, "logger.bin", []byte("raw logger data"))
	ts := time.Date(2024, time.March, 1, 17, 45, 0, 0, time.UTC)

	res, err := newClient(t, srv.URL, "secret").Backup(context.Background(), "TL", "0042", ts, path)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Nil(t, res.Errors)
	assert.Equal(t, int32(1), hits.Load())

	assert.Equal(t, "secret", got.apiKey)
	assert.Equal(t, "TL", got.typeCode)
	assert.Equal(t, "0042", got.serial)
	assert.Equal(t, "2024-03-01", got.timestamp)
	assert.Equal(t, "logger.bin", got.filename)
	assert.Equal(t, "raw logger data", string(got.content))
	assert.Contains(t, got.contentType, "multipart/form-data")
}

func TestBackupSendsContentLength(t *testing.T) {
	var got receivedBackup
	var hits atomic.Int32
	srv := backupServer(t, http.StatusCreated, `{}`, &got, &hits)
	defer srv.Close()

	payload := bytes.Repeat([]byte("0123456789abcdef"), 16<<10)
	path := writeTempFile(t, "large.bin", payload)

	res, err := newClient(t, srv.URL, "").Backup(context.Background(), "TL", "7", time.Now(), path)
	require.NoError(t, err)
	require.True(t, res.OK(), "errors: %v", res.Errors)

	assert.False(t, got.chunked)
	assert.Greater(t, got.length, int64(len(payload)))
	assert.Equal(t, payload, got.content)
}

func TestBackupRemoteFailure(t *testing.T) {
	var hits atomic.Int32
	srv := backupServer(t, http.StatusBadRequest, `{"errors":{"loggerSerial":["required"]}}`, nil, &hits)
	defer srv.Close()

	path := writeTempFile(t, "logger.bin", []byte("x"))
	res, err := newClient(t, srv.URL, "").Backup(context.Background(), "TL", "", time.Now(), path)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, map[string]any{
		"errors": map[string]any{"loggerSerial": []any{"required"}},
	}, res.Errors)
}

func TestBackupUnreadableFile(t *testing.T) {
	var hits atomic.Int32
	srv := backupServer(t, http.StatusCreated, `{}`, nil, &hits)
	defer srv.Close()
	client := newClient(t, srv.URL, "")

	for _, path := range []string{
		filepath.Join(t.TempDir(), "missing.bin"),
		t.TempDir(),
		"",
	} {
		res, err := client.Backup(context.Background(), "TL", "1", time.Now(), path)
		assert.Nil(t, res)
		var fileErr *chronicles.FileAccessError
		require.ErrorAs(t, err, &fileErr, "path %q", path)
		assert.Equal(t, path, fileErr.Path)
	}
	missing := filepath.Join(t.TempDir(), "missing.bin")
	_, err := client.Backup(context.Background(), "TL", "1", time.Now(), missing)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Equal(t, int32(0), hits.Load())
}

func TestTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := newClient(t, url, "")
	_, err := client.Navigate(context.Background(), "")
	var transportErr *chronicles.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.MethodGet, transportErr.Method)
	assert.Equal(t, url+"/api/v1/backup/", transportErr.URL)

	_, err = client.Download(context.Background(), "x")
	require.ErrorAs(t, err, &transportErr)

	path := writeTempFile(t, "logger.bin", []byte("x"))
	_, err = client.Backup(context.Background(), "TL", "1", time.Now(), path)
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.MethodPost, transportErr.Method)
}

func TestCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newClient(t, srv.URL, "").Navigate(ctx, "")
	var transportErr *chronicles.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRemoteErrorFormatting(t *testing.T) {
	err := (&chronicles.RemoteError{StatusCode: 502, Body: "Bad Gateway"}).Error()
	assert.Equal(t, "chronicles: remote error: status=502 body=Bad Gateway", err)

	res := chronicles.RequestResult{StatusCode: 200}
	assert.NoError(t, res.Err())

	raw, jerr := json.Marshal(map[string]any{"message": "nope"})
	require.NoError(t, jerr)
	err = (&chronicles.RemoteError{StatusCode: 404, Body: map[string]any{"message": "nope"}}).Error()
	assert.Contains(t, err, string(raw))
}
