// Package banter picks flavour lines for interaction results without repeating a line until
// every line of its category has been shown.
package banter

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Categories used by the interaction resolver.
const (
	GiftSuccess = "gift_success"
	MugSuccess  = "mug_success"
	MugFail     = "mug_fail"
	Snowball    = "snowball"
	Lock        = "lock"
)

// Placeholder is the only line of a category the catalog does not know.
const Placeholder = "[no banter]"

var defaultLines = map[string][]string{
	GiftSuccess: {"Nice gift!"},
	MugSuccess:  {"You pulled off the heist."},
	MugFail:     {"Heist failed."},
	Snowball:    {"Snowball hit!"},
	Lock:        {"Stocking locked."},
}

// Catalog holds the full line set of every category. It is read once and never changes.
type Catalog struct {
	lines map[string][]string
}

// DefaultCatalog returns the built-in lines.
func DefaultCatalog() *Catalog {
	return NewCatalog(defaultLines)
}

// NewCatalog builds a catalog from category -> lines. Blank lines are dropped.
func NewCatalog(lines map[string][]string) *Catalog {
	c := &Catalog{lines: make(map[string][]string, len(lines))}
	for category, set := range lines {
		var kept []string
		for _, line := range set {
			if strings.TrimSpace(line) != "" {
				kept = append(kept, line)
			}
		}
		if len(kept) > 0 {
			c.lines[category] = kept
		}
	}
	return c
}

// ErrNoFile is returned together with the default catalog when path does not exist.
var ErrNoFile = errors.New("banter: catalog file not found")

// LoadCatalog reads a YAML (or JSON) mapping of category to lines. The file replaces the
// built-in set entirely. An empty path selects the defaults. A missing file yields the default
// catalog and ErrNoFile, so the caller can decide whether to warn; an unreadable or malformed
// file is an error.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	// #nosec G304: the banter path comes from configuration
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultCatalog(), ErrNoFile
	}
	if err != nil {
		return nil, fmt.Errorf("banter: read %q: %w", path, err)
	}

	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("banter: parse %q: %w", path, err)
	}

	return NewCatalog(raw), nil
}

// Lines returns a copy of the full set for category, or the placeholder set when the category
// is unknown.
func (c *Catalog) Lines(category string) []string {
	if c == nil {
		return []string{Placeholder}
	}
	lines, ok := c.lines[category]
	if !ok {
		return []string{Placeholder}
	}
	return append([]string(nil), lines...)
}

// Categories lists the categories that have configured lines.
func (c *Catalog) Categories() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.lines))
	for category := range c.lines {
		out = append(out, category)
	}
	return out
}
