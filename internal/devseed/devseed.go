// Package devseed loads fixture files used to prefill the in-memory
// chronicles service.
package devseed

import (
	"encoding/base64"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Entry describes one stored file. Exactly one of Text or Base64 carries the
// content.
type Entry struct {
	Path        string `yaml:"path" json:"path"`
	Text        string `yaml:"text,omitempty" json:"text,omitempty"`
	Base64      string `yaml:"base64,omitempty" json:"base64,omitempty"`
	ContentType string `yaml:"content_type,omitempty" json:"content_type,omitempty"`
}

// Content returns the decoded file bytes.
func (e Entry) Content() ([]byte, error) {
	if e.Base64 != "" && e.Text != "" {
		return nil, errors.Errorf("devseed: entry %q sets both text and base64", e.Path)
	}
	if e.Base64 != "" {
		data, err := base64.StdEncoding.DecodeString(e.Base64)
		if err != nil {
			return nil, errors.Wrapf(err, "devseed: decode base64 for %q", e.Path)
		}
		return data, nil
	}
	return []byte(e.Text), nil
}

// LoadSeed reads a YAML list of entries from path. JSON documents are
// accepted as well.
func LoadSeed(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "devseed: read %s", path)
	}
	return ParseSeed(data)
}

// ParseSeed decodes a seed document.
func ParseSeed(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrap(err, "devseed: decode seed")
	}
	for i, e := range entries {
		if strings.TrimSpace(e.Path) == "" {
			return nil, errors.Errorf("devseed: entry %d is missing a path", i)
		}
	}
	return entries, nil
}
