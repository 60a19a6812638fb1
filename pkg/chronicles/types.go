package chronicles

import (
	"strings"
)

// DefaultAPIVersion is used when Config.APIVersion is left blank.
const DefaultAPIVersion = "v1"

// APIKeyHeader carries the configured API key on every request.
const APIKeyHeader = "X-API-Key"

// Config describes where and how the client talks to the service.
type Config struct {
	// Host is the base URL of the service, e.g. "https://chronicles.example.com".
	Host string
	// APIKey is optional; when empty the key header is not sent.
	APIKey string
	// APIVersion selects the API generation. Defaults to DefaultAPIVersion.
	APIVersion string
}

func (c Config) normalized() Config {
	if strings.TrimSpace(c.APIVersion) == "" {
		c.APIVersion = DefaultAPIVersion
	}
	return c
}

// RequestResult is shared by every operation result.
type RequestResult struct {
	// StatusCode is the raw HTTP status returned by the service.
	StatusCode int
	// Errors holds the decoded error body. It is nil if and only if the
	// request succeeded.
	Errors any
}

// OK reports whether the service accepted the request.
func (r RequestResult) OK() bool {
	return r.Errors == nil
}

// Err returns a *RemoteError describing a failed request, or nil.
func (r RequestResult) Err() error {
	if r.Errors == nil {
		return nil
	}
	return &RemoteError{StatusCode: r.StatusCode, Body: r.Errors}
}

// PostResult is the outcome of a backup upload.
type PostResult struct {
	RequestResult
}

// NavigateItem is one entry of a directory listing.
type NavigateItem struct {
	Name   string `json:"name"`
	IsFile bool   `json:"isfile"`
}

// NavigateResult is the outcome of a directory listing. Entries is nil when
// the request failed and non-nil (possibly empty) when it succeeded.
type NavigateResult struct {
	RequestResult
	Entries []NavigateItem
}

// DownloadResult is the outcome of a file download. Content and MimeType are
// only populated for successful requests.
type DownloadResult struct {
	RequestResult
	Content  []byte
	MimeType string
}
