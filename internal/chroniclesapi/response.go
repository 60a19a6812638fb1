// Package chroniclesapi decodes the response bodies produced by the logger
// chronicles REST API.
package chroniclesapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// Succeeded reports whether status lies in the range the API treats as a
// completed request. Redirects are resolved by the transport before a status
// reaches this check, so anything below 400 counts.
func Succeeded(status int) bool {
	return status > 0 && status < http.StatusBadRequest
}

// DecodeErrors turns an error response body into a structured value. JSON
// bodies are decoded generically; anything else is surfaced as its raw text.
// An empty body falls back to the status text so that a failed request never
// yields a nil payload.
func DecodeErrors(status int, body []byte) any {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		if text := http.StatusText(status); text != "" {
			return text
		}
		return fmt.Sprintf("status %d", status)
	}

	var payload any
	if err := json.Unmarshal(trimmed, &payload); err != nil || payload == nil {
		return string(trimmed)
	}
	return payload
}

// Entry mirrors a single element of the navigate listing.
type Entry struct {
	Name   string `json:"name"`
	IsFile bool   `json:"isfile"`
}

// DecodeEntries parses a navigate listing. The order of the array is kept.
// A JSON null decodes to an empty listing.
func DecodeEntries(body []byte) ([]Entry, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("chroniclesapi: empty navigate body")
	}
	var entries []Entry
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, fmt.Errorf("chroniclesapi: decode navigate listing: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
