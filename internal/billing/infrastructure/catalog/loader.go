// Package catalog loads the bundle catalog from a YAML file.
package catalog

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ins72/mewayz-good-sub001/internal/billing/domain"
	"github.com/ins72/mewayz-good-sub001/internal/shared/infrastructure/security"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const maxCatalogBytes = 1 << 20

type fileFormat struct {
	Bundles []bundleEntry `yaml:"bundles"`
}

type bundleEntry struct {
	ID           string   `yaml:"id"`
	DisplayName  string   `yaml:"display_name"`
	MonthlyPrice string   `yaml:"monthly_price"`
	Features     []string `yaml:"features"`
}

// Load returns the catalog at path, or the built-in catalog when path is
// empty.
func Load(path string) (*domain.Catalog, error) {
	if path == "" {
		return domain.NewCatalog(domain.DefaultBundles())
	}
	return LoadFile(path)
}

// LoadFile reads and validates a catalog file.
func LoadFile(path string) (*domain.Catalog, error) {
	data, err := security.ReadFile(path, maxCatalogBytes)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	catalog, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return catalog, nil
}

// Parse decodes a catalog document. Prices are decimal strings so that no
// float rounding happens on the way in. Unknown keys are rejected.
func Parse(r io.Reader) (*domain.Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc fileFormat
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return domain.NewCatalog(nil)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCatalog, err)
	}

	bundles := make([]domain.Bundle, 0, len(doc.Bundles))
	for i, entry := range doc.Bundles {
		price, err := decimal.NewFromString(entry.MonthlyPrice)
		if err != nil {
			return nil, fmt.Errorf("%w: bundle %d (%s): monthly_price %q", domain.ErrInvalidCatalog, i, entry.ID, entry.MonthlyPrice)
		}
		display := entry.DisplayName
		if display == "" {
			display = entry.ID
		}
		bundles = append(bundles, domain.Bundle{
			ID:           entry.ID,
			DisplayName:  display,
			MonthlyPrice: price,
			Features:     entry.Features,
		})
	}
	return domain.NewCatalog(bundles)
}
