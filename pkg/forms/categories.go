package forms

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/formhive/formhive/pkg/access"
)

// Categories is the closed list of form categories. Category names are
// compared case-insensitively and stored lowercased.
type Categories struct {
	names []string
	set   map[string]struct{}
}

type categoriesFile struct {
	Categories []string `yaml:"categories"`
}

// DefaultCategories returns the built-in category list used when no
// categories file is configured.
func DefaultCategories() *Categories {
	c, _ := newCategories([]string{
		"survey",
		"feedback",
		"registration",
		"application",
		"quiz",
		"poll",
		"other",
	})
	return c
}

// LoadCategories reads the category list from a YAML file of the form:
//
//	categories:
//	  - survey
//	  - feedback
//
// An empty path yields the default list.
func LoadCategories(path string) (*Categories, error) {
	if path == "" {
		return DefaultCategories(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read categories file: %w", err)
	}

	var file categoriesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse categories file %s: %w", path, err)
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("categories file %s defines no categories", path)
	}

	return newCategories(file.Categories)
}

func newCategories(names []string) (*Categories, error) {
	c := &Categories{set: make(map[string]struct{}, len(names))}
	for _, name := range names {
		normalized := normalizeCategory(name)
		if normalized == "" {
			return nil, fmt.Errorf("category names must be non-empty")
		}
		if _, dup := c.set[normalized]; dup {
			return nil, fmt.Errorf("duplicate category %q", normalized)
		}
		c.set[normalized] = struct{}{}
		c.names = append(c.names, normalized)
	}
	sort.Strings(c.names)
	return c, nil
}

// Names returns the category names in sorted order.
func (c *Categories) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Contains reports whether name is a known category.
func (c *Categories) Contains(name string) bool {
	_, ok := c.set[normalizeCategory(name)]
	return ok
}

// Validate checks a category value from user input. The empty string is
// always accepted: forms may be uncategorized.
func (c *Categories) Validate(name string) error {
	if normalizeCategory(name) == "" {
		return nil
	}
	if !c.Contains(name) {
		return &access.ValidationError{
			Message: fmt.Sprintf("unknown category %q", normalizeCategory(name)),
		}
	}
	return nil
}
