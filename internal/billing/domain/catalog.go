package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Bundle is a purchasable group of services.
type Bundle struct {
	ID           string
	DisplayName  string
	MonthlyPrice decimal.Decimal
	Features     []string
}

// Catalog is the immutable bundle registry built once at startup.
type Catalog struct {
	bundles  []Bundle
	byID     map[string]int
	services map[string]int
}

// NewCatalog validates bundles and indexes them. Every service must belong
// to exactly one bundle; a violation is a fatal configuration error.
func NewCatalog(bundles []Bundle) (*Catalog, error) {
	if len(bundles) == 0 {
		return nil, fmt.Errorf("%w: no bundles configured", ErrInvalidCatalog)
	}

	c := &Catalog{
		bundles:  make([]Bundle, 0, len(bundles)),
		byID:     make(map[string]int, len(bundles)),
		services: make(map[string]int),
	}

	for _, b := range bundles {
		id := strings.TrimSpace(b.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: bundle with empty id", ErrInvalidCatalog)
		}
		if _, dup := c.byID[id]; dup {
			return nil, fmt.Errorf("%w: duplicate bundle %q", ErrInvalidCatalog, id)
		}
		if !b.MonthlyPrice.IsPositive() {
			return nil, fmt.Errorf("%w: bundle %q has non-positive price %s", ErrInvalidCatalog, id, b.MonthlyPrice)
		}

		idx := len(c.bundles)
		features := make([]string, 0, len(b.Features))
		for _, service := range b.Features {
			service = strings.TrimSpace(service)
			if service == "" {
				continue
			}
			if owner, taken := c.services[service]; taken {
				return nil, fmt.Errorf("%w: service %q belongs to both %q and %q",
					ErrInvalidCatalog, service, c.bundles[owner].ID, id)
			}
			c.services[service] = idx
			features = append(features, service)
		}

		c.byID[id] = idx
		c.bundles = append(c.bundles, Bundle{
			ID:           id,
			DisplayName:  b.DisplayName,
			MonthlyPrice: b.MonthlyPrice,
			Features:     features,
		})
	}

	return c, nil
}

// List returns bundles in configuration order.
func (c *Catalog) List() []Bundle {
	out := make([]Bundle, len(c.bundles))
	for i, b := range c.bundles {
		out[i] = b.clone()
	}
	return out
}

// Get returns the bundle with the given id.
func (c *Catalog) Get(id string) (Bundle, error) {
	idx, ok := c.byID[id]
	if !ok {
		return Bundle{}, fmt.Errorf("bundle %q: %w", id, ErrNotFound)
	}
	return c.bundles[idx].clone(), nil
}

// ResolveService returns the bundle that unlocks service.
func (c *Catalog) ResolveService(service string) (Bundle, error) {
	idx, ok := c.services[service]
	if !ok {
		return Bundle{}, fmt.Errorf("service %q: %w", service, ErrNotFound)
	}
	return c.bundles[idx].clone(), nil
}

// OwnerOf returns the owning bundle id without copying the bundle.
func (c *Catalog) OwnerOf(service string) (string, bool) {
	idx, ok := c.services[service]
	if !ok {
		return "", false
	}
	return c.bundles[idx].ID, true
}

// Select validates ids against the catalog and returns the canonical
// selection. Validation is local and happens before any gateway call.
func (c *Catalog) Select(ids []string) (Selection, error) {
	sel := NewSelection(ids...)
	if sel.Len() == 0 {
		return nil, ErrEmptySelection
	}
	for _, id := range sel {
		if _, ok := c.byID[id]; !ok {
			return nil, &UnknownBundleError{ID: id}
		}
	}
	return sel, nil
}

func (b Bundle) clone() Bundle {
	b.Features = append([]string(nil), b.Features...)
	return b
}

// DefaultBundles is the built-in MEWAYZ bundle lineup.
func DefaultBundles() []Bundle {
	return []Bundle{
		{
			ID:           "creator",
			DisplayName:  "Creator",
			MonthlyPrice: decimal.NewFromInt(19),
			Features:     []string{"bio_link_pages", "website_builder", "content_templates", "seo_tools", "ai_content"},
		},
		{
			ID:           "ecommerce",
			DisplayName:  "E-commerce",
			MonthlyPrice: decimal.NewFromInt(24),
			Features:     []string{"stores", "products", "orders", "inventory", "payment_links"},
		},
		{
			ID:           "social_media",
			DisplayName:  "Social Media",
			MonthlyPrice: decimal.NewFromInt(29),
			Features:     []string{"social_scheduling", "instagram_database", "social_analytics", "hashtag_research"},
		},
		{
			ID:           "education",
			DisplayName:  "Education",
			MonthlyPrice: decimal.NewFromInt(29),
			Features:     []string{"courses", "course_community", "student_progress", "certificates"},
		},
		{
			ID:           "business",
			DisplayName:  "Business",
			MonthlyPrice: decimal.NewFromInt(39),
			Features:     []string{"crm", "email_campaigns", "messaging", "automation_workflows"},
		},
		{
			ID:           "operations",
			DisplayName:  "Operations",
			MonthlyPrice: decimal.NewFromInt(24),
			Features:     []string{"bookings", "invoicing", "forms", "financial_reports"},
		},
	}
}
