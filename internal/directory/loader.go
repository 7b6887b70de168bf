package directory

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// tableDocument is the YAML shape of the prefix table:
//
//	prefixes:
//	  "972050":
//	    base_url: "http://vodafone:8081"
//	    client_id: "vodafone-client"
//	    client_secret: "..."
type tableDocument struct {
	Prefixes map[string]tableEntry `yaml:"prefixes"`
}

type tableEntry struct {
	BaseURL      string `yaml:"base_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// LoadFile reads a prefix table from a YAML file and builds a directory from
// it. Validation errors surface as ConfigError so startup fails eagerly.
func LoadFile(path string) (*Directory, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prefix table %s: %w", path, err)
	}
	return Parse(content)
}

// Parse builds a directory from raw YAML prefix-table content
func Parse(content []byte) (*Directory, error) {
	var doc tableDocument
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse prefix table: %w", err)
	}

	entries := make([]Entry, 0, len(doc.Prefixes))
	for prefix, e := range doc.Prefixes {
		entries = append(entries, Entry{
			Prefix:       prefix,
			BaseURL:      e.BaseURL,
			ClientID:     e.ClientID,
			ClientSecret: e.ClientSecret,
		})
	}

	return New(entries)
}
