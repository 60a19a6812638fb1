package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used by the helper.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithHeaders assigns default headers added to every request.
func WithHeaders(h http.Header) Option {
	return func(c *Client) {
		for k, values := range h {
			for _, v := range values {
				c.headers.Add(k, v)
			}
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client wraps http.Client providing base URL and default header utilities.
// Every response is handed back to the caller regardless of its status code.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	headers    http.Header
	logger     *zap.Logger
}

// Request describes a single outbound request.
type Request struct {
	Method string
	// Path is resolved against the base URL unless it is already absolute.
	Path   string
	Query  url.Values
	Header http.Header
	Body   io.Reader

	// ContentLength is sent when positive. Otherwise the length is derived
	// from Body where net/http can, falling back to chunked encoding.
	ContentLength int64
}

// NewClient creates a Client for the provided base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("httpx: base URL is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("httpx: invalid base URL: %w", err)
	}

	c := &Client{
		baseURL: parsed,
		// No timeout: callers that want one supply their own client.
		httpClient: &http.Client{},
		headers:    make(http.Header),
		logger:     zap.L(),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Logger returns the logger attached to the client.
func (c *Client) Logger() *zap.Logger {
	return c.logger
}

// Do executes the provided request once and returns the response. Non-2xx
// responses are not treated as errors; only transport failures are.
func (c *Client) Do(ctx context.Context, req *Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("httpx: request is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Method == "" {
		return nil, errors.New("httpx: HTTP method is required")
	}

	fullURL, err := c.buildURL(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	body := req.Body
	if body == nil {
		body = http.NoBody
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, err
	}
	if req.ContentLength > 0 {
		httpReq.ContentLength = req.ContentLength
	}

	httpReq.Header = cloneHeader(c.headers)
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("method", req.Method),
			zap.String("url", fullURL),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, err
	}
	c.logger.Debug("request completed",
		zap.String("method", req.Method),
		zap.String("url", fullURL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))
	return resp, nil
}

func closeBody(rc io.ReadCloser) {
	if rc != nil {
		_ = rc.Close()
	}
}

func (c *Client) buildURL(path string, q url.Values) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	if !ref.IsAbs() {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		if ref, err = url.Parse(path); err != nil {
			return "", err
		}
		ref = c.baseURL.ResolveReference(ref)
	}
	if len(q) > 0 {
		ref.RawQuery = q.Encode()
	}
	return ref.String(), nil
}

// ReadAllAndClose drains the reader and ensures it is closed.
func ReadAllAndClose(rc io.ReadCloser) ([]byte, error) {
	defer closeBody(rc)
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// DrainAndClose discards whatever is left of the body and closes it so the
// underlying connection can be reused.
func DrainAndClose(rc io.ReadCloser) {
	if rc == nil {
		return
	}
	_, _ = io.Copy(io.Discard, rc)
	_ = rc.Close()
}

func cloneHeader(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for k, values := range src {
		vCopy := make([]string, len(values))
		copy(vCopy, values)
		dst[k] = vCopy
	}
	return dst
}
