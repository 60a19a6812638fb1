package chronicles

import (
	"encoding/json"
	"fmt"
)

// ConfigurationError is returned when a Client cannot be constructed.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("chronicles: invalid configuration: %s %s", e.Field, e.Reason)
}

// FileAccessError is returned when the file handed to Backup cannot be
// opened or read. No request is issued in that case.
type FileAccessError struct {
	Path string
	Err  error
}

func (e *FileAccessError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("chronicles: access backup file %q: %v", e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// TransportError wraps network level failures (DNS, refused connections,
// timeouts, cancellation) that prevented a response from being received.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("chronicles: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// RemoteError describes a request the service answered with a failure
// status. Operations never return it directly; use RequestResult.Err.
type RemoteError struct {
	StatusCode int
	Body       any
}

func (e *RemoteError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("chronicles: remote error: status=%d body=%s", e.StatusCode, formatBody(e.Body))
}

func formatBody(body any) string {
	if s, ok := body.(string); ok {
		return s
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Sprint(body)
	}
	return string(data)
}
