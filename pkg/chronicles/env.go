package chronicles

import (
	"fmt"
	"os"
	"strings"

	"github.com/loggerchronicles/chronicles_sdk_go/internal/devseed"
	"github.com/loggerchronicles/chronicles_sdk_go/internal/httpx"
	"github.com/loggerchronicles/chronicles_sdk_go/pkg/chronicles/mock"
)

const (
	envMode       = "CHRONICLES_RUNTIME_MODE"
	envURL        = "CHRONICLES_API_URL"
	envAPIKey     = "CHRONICLES_API_KEY"
	envAPIVersion = "CHRONICLES_API_VERSION"
	envMockSeed   = "CHRONICLES_MOCK_SEED"

	modeAuto = "auto"
	modeHTTP = "http"
	modeMock = "mock"
)

// NewFromEnv initialises a Client from CHRONICLES_* environment variables
// and returns the resolved mode ("http" or "mock"). In auto mode (the
// default) the HTTP client is used when CHRONICLES_API_URL is set.
func NewFromEnv(opts ...Option) (client *Client, mode string, err error) {
	mode = strings.ToLower(strings.TrimSpace(os.Getenv(envMode)))
	cfg := Config{
		Host:       strings.TrimSpace(os.Getenv(envURL)),
		APIKey:     os.Getenv(envAPIKey),
		APIVersion: os.Getenv(envAPIVersion),
	}

	switch mode {
	case "", modeAuto:
		if cfg.Host != "" {
			return newHTTPClient(cfg, opts)
		}
		return newMockClient(cfg, opts)
	case modeHTTP:
		if cfg.Host == "" {
			return nil, "", fmt.Errorf("chronicles: HTTP mode requires %s", envURL)
		}
		return newHTTPClient(cfg, opts)
	case modeMock:
		return newMockClient(cfg, opts)
	default:
		return nil, "", fmt.Errorf("chronicles: unsupported %s value %q", envMode, mode)
	}
}

func newHTTPClient(cfg Config, opts []Option) (*Client, string, error) {
	client, err := New(cfg, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("chronicles: init HTTP client: %w", err)
	}
	return client, modeHTTP, nil
}

func newMockClient(cfg Config, opts []Option) (*Client, string, error) {
	cfg = cfg.normalized()
	// Resolve the caller's options once so the service traces requests with
	// the same logger as the client.
	resolved, err := httpx.NewClient(mock.BaseURL, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("chronicles: init mock client: %w", err)
	}
	svc := mock.New(
		mock.WithAPIKey(cfg.APIKey),
		mock.WithAPIVersion(cfg.APIVersion),
		mock.WithLogger(resolved.Logger()),
	)
	if path := strings.TrimSpace(os.Getenv(envMockSeed)); path != "" {
		entries, err := devseed.LoadSeed(path)
		if err != nil {
			return nil, "", fmt.Errorf("chronicles: load mock seed: %w", err)
		}
		if err := svc.Seed(entries); err != nil {
			return nil, "", fmt.Errorf("chronicles: apply mock seed: %w", err)
		}
	}
	cfg.Host = mock.BaseURL
	opts = append(append([]Option(nil), opts...), WithHTTPClient(svc.HTTPClient()))
	client, err := New(cfg, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("chronicles: init mock client: %w", err)
	}
	return client, modeMock, nil
}
