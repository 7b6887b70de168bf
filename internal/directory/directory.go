// Package directory resolves telecom routing keys to provider descriptors
// using longest-prefix matching over an immutable, startup-loaded table.
package directory

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when no configured prefix matches a routing key
	ErrNotFound = errors.New("no telco prefix matches routing key")
)

// maxRoutingKeyDigits bounds prefix length per E.164
const maxRoutingKeyDigits = 15

// ConfigError indicates the prefix table failed load-time validation.
// It fails process startup rather than failing lazily per-request.
type ConfigError struct {
	Prefix string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Prefix == "" {
		return fmt.Sprintf("invalid prefix table: %s", e.Reason)
	}
	return fmt.Sprintf("invalid prefix table entry %q: %s", e.Prefix, e.Reason)
}

// Entry is one row of the prefix table: a digit-string prefix mapped to the
// provider that owns numbers under it.
type Entry struct {
	Prefix       string
	BaseURL      string
	ClientID     string
	ClientSecret string
}

// Descriptor identifies a resolved provider: where to reach its token
// endpoint and which client credentials to present.
type Descriptor struct {
	// Prefix is the table prefix that matched
	Prefix string

	// BaseURL is the provider's base URL; the token endpoint path is
	// appended by the telco client
	BaseURL string

	ClientID     string
	ClientSecret string
}

// Directory is an immutable prefix index. It is built once at startup and is
// safe for unlimited concurrent reads; runtime updates are done by building
// a new Directory and swapping the reference.
type Directory struct {
	// prefixes sorted by descending length so the first literal prefix of a
	// query is also the longest one
	prefixes []string
	entries  map[string]Descriptor
}

// New builds a directory from the given entries, validating each one.
// It returns a ConfigError on the first malformed or duplicate entry.
func New(entries []Entry) (*Directory, error) {
	if len(entries) == 0 {
		return nil, &ConfigError{Reason: "no prefixes configured"}
	}

	byPrefix := make(map[string]Descriptor, len(entries))
	prefixes := make([]string, 0, len(entries))

	for _, e := range entries {
		if err := validate(e); err != nil {
			return nil, err
		}
		if _, exists := byPrefix[e.Prefix]; exists {
			return nil, &ConfigError{Prefix: e.Prefix, Reason: "duplicate prefix"}
		}

		byPrefix[e.Prefix] = Descriptor{
			Prefix:       e.Prefix,
			BaseURL:      strings.TrimRight(e.BaseURL, "/"),
			ClientID:     e.ClientID,
			ClientSecret: e.ClientSecret,
		}
		prefixes = append(prefixes, e.Prefix)
	}

	// Longest first; equal lengths cannot conflict (uniqueness above), sort
	// them lexically for deterministic iteration
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})

	return &Directory{
		prefixes: prefixes,
		entries:  byPrefix,
	}, nil
}

// Resolve returns the provider descriptor for the longest configured prefix
// that is a literal prefix of mcc+sn. Returns ErrNotFound when no prefix
// matches.
func (d *Directory) Resolve(mcc, sn string) (*Descriptor, error) {
	query := mcc + sn
	if query == "" {
		return nil, ErrNotFound
	}

	for _, prefix := range d.prefixes {
		if strings.HasPrefix(query, prefix) {
			desc := d.entries[prefix]
			return &desc, nil
		}
	}

	return nil, ErrNotFound
}

// Len returns the number of configured prefixes
func (d *Directory) Len() int {
	return len(d.prefixes)
}

func validate(e Entry) error {
	if e.Prefix == "" {
		return &ConfigError{Reason: "empty prefix"}
	}
	if len(e.Prefix) > maxRoutingKeyDigits {
		return &ConfigError{Prefix: e.Prefix, Reason: fmt.Sprintf("prefix exceeds %d digits", maxRoutingKeyDigits)}
	}
	for _, r := range e.Prefix {
		if r < '0' || r > '9' {
			return &ConfigError{Prefix: e.Prefix, Reason: "prefix must contain only digits"}
		}
	}
	if e.BaseURL == "" {
		return &ConfigError{Prefix: e.Prefix, Reason: "missing base_url"}
	}
	if e.ClientID == "" {
		return &ConfigError{Prefix: e.Prefix, Reason: "missing client_id"}
	}
	if e.ClientSecret == "" {
		return &ConfigError{Prefix: e.Prefix, Reason: "missing client_secret"}
	}
	return nil
}
