// Package catalog reads products, categories and profiles from Postgres and arranges the
// home page buckets.
package catalog

import (
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/locale"
)

// Media is one entry of a product's media gallery.
type Media struct {
	URL     string `json:"url"`
	Type    string `json:"type,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// Product mirrors a row of the products table. Name doubles as the URL slug.
type Product struct {
	ID                 int64
	Name               string
	Description        string
	CategoryID         *int64
	Media              []Media
	Price              decimal.NullDecimal
	ColonPrice         decimal.NullDecimal
	DiscountPercentage decimal.NullDecimal
	IsActive           bool
	IsFeatured         bool
	CreatedAt          time.Time
}

// HasMedia reports whether the product has at least one media entry with a URL.
func (p Product) HasMedia() bool {
	for _, m := range p.Media {
		if strings.TrimSpace(m.URL) != "" {
			return true
		}
	}
	return false
}

// Image returns the first media URL, or "".
func (p Product) Image() string {
	for _, m := range p.Media {
		if strings.TrimSpace(m.URL) != "" {
			return m.URL
		}
	}
	return ""
}

// Images returns every media URL in gallery order.
func (p Product) Images() []string {
	out := make([]string, 0, len(p.Media))
	for _, m := range p.Media {
		if strings.TrimSpace(m.URL) != "" {
			out = append(out, m.URL)
		}
	}
	return out
}

// Path is the unprefixed detail path for the product.
func (p Product) Path() string { return ProductPath(p.Name) }

// ProductPath builds "/product/{slug}" from a product name, path-escaping it and nothing more.
func ProductPath(name string) string {
	return "/product/" + url.PathEscape(name)
}

// InCategory reports whether the product belongs to category id.
func (p Product) InCategory(id int64) bool {
	return p.CategoryID != nil && *p.CategoryID == id
}

// Money is an amount tagged with its ISO currency code.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// DisplayPrice picks the price shown to loc: colones for Spanish when set, US dollars otherwise.
func (p Product) DisplayPrice(loc locale.Locale) (Money, bool) {
	if loc == locale.Spanish && p.ColonPrice.Valid {
		return Money{Amount: p.ColonPrice.Decimal, Currency: "CRC"}, true
	}
	if p.Price.Valid {
		return Money{Amount: p.Price.Decimal, Currency: "USD"}, true
	}
	if p.ColonPrice.Valid {
		return Money{Amount: p.ColonPrice.Decimal, Currency: "CRC"}, true
	}
	return Money{}, false
}

// Discounted applies DiscountPercentage to m. It returns false when no discount applies.
func (p Product) Discounted(m Money) (Money, bool) {
	if !p.DiscountPercentage.Valid || !p.DiscountPercentage.Decimal.IsPositive() {
		return m, false
	}
	pct := decimal.Min(p.DiscountPercentage.Decimal, decimal.NewFromInt(100))
	factor := decimal.NewFromInt(100).Sub(pct).Div(decimal.NewFromInt(100))
	return Money{Amount: m.Amount.Mul(factor).Round(2), Currency: m.Currency}, true
}

// sortPrice is the price used to rank non-featured products: ColonPrice, else Price.
func (p Product) sortPrice() decimal.Decimal {
	if p.ColonPrice.Valid {
		return p.ColonPrice.Decimal
	}
	if p.Price.Valid {
		return p.Price.Decimal
	}
	return decimal.Zero
}

// Category mirrors a row of the categories table.
type Category struct {
	ID     int64
	Name   string
	NameES string
	NameEN string
}

// Label returns the localized name, falling back to Name.
func (c Category) Label(loc locale.Locale) string {
	switch loc {
	case locale.Spanish:
		if c.NameES != "" {
			return c.NameES
		}
	case locale.English:
		if c.NameEN != "" {
			return c.NameEN
		}
	}
	return c.Name
}

// IsKitchen reports whether any of the category's names refers to the kitchen.
func (c Category) IsKitchen() bool {
	for _, n := range []string{c.Name, c.NameES, c.NameEN} {
		n = strings.ToLower(n)
		if strings.Contains(n, "cocina") || strings.Contains(n, "kitchen") {
			return true
		}
	}
	return false
}

// RoleAdmin is the profiles.role value granting access to the admin area.
const RoleAdmin = "admin"

// Profile mirrors a row of the profiles table.
type Profile struct {
	ID   string
	Role string
}

// IsAdmin reports whether the profile carries the admin role.
func (p Profile) IsAdmin() bool { return strings.EqualFold(strings.TrimSpace(p.Role), RoleAdmin) }
