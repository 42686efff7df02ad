package audit

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.yaml.in/yaml/v3"
)

//go:embed allowlist.yaml
var defaultAllowList []byte

// AllowList decides which matches are expected.
type AllowList struct {
	Entries []string `yaml:"allow"`
}

// DefaultAllowList returns the embedded allow-list.
func DefaultAllowList() (*AllowList, error) {
	return ParseAllowList(defaultAllowList)
}

// ParseAllowList parses YAML allow-list data and validates glob entries.
func ParseAllowList(data []byte) (*AllowList, error) {
	var al AllowList
	if err := yaml.Unmarshal(data, &al); err != nil {
		return nil, fmt.Errorf("parsing allow-list: %w", err)
	}
	entries := al.Entries[:0]
	for _, e := range al.Entries {
		e = strings.TrimSpace(filepath.ToSlash(e))
		if e == "" {
			continue
		}
		if isGlob(e) && !doublestar.ValidatePattern(e) {
			return nil, fmt.Errorf("allow-list: invalid pattern %q", e)
		}
		entries = append(entries, e)
	}
	al.Entries = entries
	return &al, nil
}

// LoadAllowList reads an allow-list file; an empty path returns the
// embedded default.
func LoadAllowList(path string) (*AllowList, error) {
	if path == "" {
		return DefaultAllowList()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading allow-list %s: %w", path, err)
	}
	return ParseAllowList(data)
}

// Allows reports whether the repository-relative path rel is allow-listed.
func (al *AllowList) Allows(rel string) bool {
	if al == nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, e := range al.Entries {
		switch {
		case isGlob(e):
			if ok, err := doublestar.Match(e, rel); err == nil && ok {
				return true
			}
		case strings.HasSuffix(e, "/"):
			if strings.HasPrefix(rel, e) {
				return true
			}
		case rel == e:
			return true
		}
	}
	return false
}

func isGlob(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}
