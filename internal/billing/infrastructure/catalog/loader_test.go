package catalog_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	"github.com/ins72/mewayz-good-sub001/internal/billing/infrastructure/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
bundles:
  - id: starter
    display_name: Starter
    monthly_price: "9.99"
    features: [bio_link_pages, seo_tools]
  - id: pro
    monthly_price: "29"
    features: [crm]
`

func TestParse(t *testing.T) {
	c, err := catalog.Parse(strings.NewReader(sample))
	require.NoError(t, err)

	bundles := c.List()
	require.Len(t, bundles, 2)
	assert.Equal(t, "Starter", bundles[0].DisplayName)
	assert.Equal(t, "9.99", bundles[0].MonthlyPrice.StringFixed(2))
	assert.Equal(t, "pro", bundles[1].DisplayName, "display name defaults to the id")

	owner, ok := c.OwnerOf("crm")
	require.True(t, ok)
	assert.Equal(t, "pro", owner)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty document", ""},
		{"bad price", "bundles:\n  - id: a\n    monthly_price: cheap\n"},
		{"unknown key", "bundles:\n  - id: a\n    monthly_price: \"1\"\n    colour: red\n"},
		{"shared service", "bundles:\n  - id: a\n    monthly_price: \"1\"\n    features: [crm]\n  - id: b\n    monthly_price: \"2\"\n    features: [crm]\n"},
		{"not yaml", "bundles: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.Parse(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, domain.ErrInvalidCatalog)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("built-in catalog", func(t *testing.T) {
		c, err := catalog.Load("")
		require.NoError(t, err)
		assert.Len(t, c.List(), 6)
	})

	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bundles.yaml")
		require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

		c, err := catalog.Load(path)
		require.NoError(t, err)
		assert.Len(t, c.List(), 2)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := catalog.Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
