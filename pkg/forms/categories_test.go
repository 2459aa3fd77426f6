package forms

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formhive/formhive/pkg/access"
)

func writeCategoriesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "categories.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultCategories(t *testing.T) {
	c := DefaultCategories()

	assert.True(t, c.Contains("survey"))
	assert.True(t, c.Contains("feedback"))
	assert.False(t, c.Contains("invoices"))

	// Names are sorted for stable API output
	names := c.Names()
	require.NotEmpty(t, names)
	for i := 1; i < len(names); i++ {
		assert.LessOrEqual(t, names[i-1], names[i])
	}
}

func TestLoadCategories(t *testing.T) {
	t.Run("empty path yields defaults", func(t *testing.T) {
		c, err := LoadCategories("")
		require.NoError(t, err)
		assert.True(t, c.Contains("survey"))
	})

	t.Run("loads from yaml", func(t *testing.T) {
		path := writeCategoriesFile(t, "categories:\n  - Onboarding\n  - hr\n  - compliance\n")
		c, err := LoadCategories(path)
		require.NoError(t, err)

		assert.Equal(t, []string{"compliance", "hr", "onboarding"}, c.Names())
		assert.True(t, c.Contains("ONBOARDING"))
		assert.False(t, c.Contains("survey"))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadCategories(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.ErrorContains(t, err, "failed to read categories file")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeCategoriesFile(t, "categories: {not a list")
		_, err := LoadCategories(path)
		assert.ErrorContains(t, err, "failed to parse categories file")
	})

	t.Run("empty list", func(t *testing.T) {
		path := writeCategoriesFile(t, "categories: []\n")
		_, err := LoadCategories(path)
		assert.ErrorContains(t, err, "defines no categories")
	})

	t.Run("duplicate names", func(t *testing.T) {
		path := writeCategoriesFile(t, "categories:\n  - hr\n  - HR\n")
		_, err := LoadCategories(path)
		assert.ErrorContains(t, err, "duplicate category")
	})

	t.Run("blank name", func(t *testing.T) {
		path := writeCategoriesFile(t, "categories:\n  - hr\n  - \"  \"\n")
		_, err := LoadCategories(path)
		assert.ErrorContains(t, err, "non-empty")
	})
}

func TestCategoriesValidate(t *testing.T) {
	c := DefaultCategories()

	t.Run("known category", func(t *testing.T) {
		assert.NoError(t, c.Validate("survey"))
		assert.NoError(t, c.Validate("  Survey  "))
	})

	t.Run("empty means uncategorized", func(t *testing.T) {
		assert.NoError(t, c.Validate(""))
		assert.NoError(t, c.Validate("   "))
	})

	t.Run("unknown category", func(t *testing.T) {
		err := c.Validate("invoices")
		require.Error(t, err)
		assert.True(t, access.IsValidation(err))
		assert.ErrorContains(t, err, `unknown category "invoices"`)
	})
}
