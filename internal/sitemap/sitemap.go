// Package sitemap builds the localized URL list once and renders it as sitemap XML and robots.txt.
package sitemap

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/catalog"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/locale"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/platform/requestctx"
)

const (
	FreqMonthly = "monthly"
	FreqWeekly  = "weekly"

	staticPriority  = 0.6
	productPriority = 0.8
)

// Alternate is a language variant of an entry.
type Alternate struct {
	Hreflang string
	Href     string
}

// Entry is one <url> of the sitemap.
type Entry struct {
	URL             string
	LastModified    time.Time
	ChangeFrequency string
	Priority        float64
	Alternates      []Alternate
}

// SlugSource lists the names of active products in query order.
type SlugSource interface {
	ListActiveProductSlugs(ctx context.Context) ([]sql.NullString, error)
}

// BuilderDeps bundles constructor inputs for the builder.
type BuilderDeps struct {
	Slugs  SlugSource
	Routes Routes
	Clock  func() time.Time
}

// Builder is the single sitemap generator; every output format renders its result.
type Builder struct {
	slugs  SlugSource
	routes Routes
	clock  func() time.Time
}

func NewBuilder(deps BuilderDeps) (*Builder, error) {
	if deps.Slugs == nil {
		return nil, errors.New("sitemap: slug source is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	routes := deps.Routes
	if routes.Static == nil {
		routes.Static = append([]string(nil), DefaultStaticPaths...)
	}
	if routes.Disallow == nil {
		routes.Disallow = append([]string(nil), DefaultDisallow...)
	}
	return &Builder{
		slugs:  deps.Slugs,
		routes: routes,
		clock:  func() time.Time { return clock().UTC() },
	}, nil
}

// Disallow returns the robots.txt exclusions.
func (b *Builder) Disallow() []string { return b.routes.Disallow }

// Build lists static entries (path order × locale order) then product entries (query order ×
// locale order). It never fails: a slug query error is logged and yields no product entries.
func (b *Builder) Build(ctx context.Context, origin string) []Entry {
	origin = strings.TrimRight(origin, "/")
	now := b.clock()

	entries := make([]Entry, 0, len(b.routes.Static)*len(locale.Supported))
	for _, path := range b.routes.Static {
		entries = append(entries, b.localized(origin, path, now, FreqMonthly, staticPriority)...)
	}

	slugs, err := b.slugs.ListActiveProductSlugs(ctx)
	if err != nil {
		requestctx.Logger(ctx).Warn("sitemap: product slugs unavailable", zap.Error(err))
		return entries
	}
	for _, slug := range slugs {
		if !slug.Valid || slug.String == "" {
			continue
		}
		entries = append(entries, b.localized(origin, catalog.ProductPath(slug.String), now, FreqWeekly, productPriority)...)
	}
	return entries
}

func (b *Builder) localized(origin, path string, now time.Time, freq string, priority float64) []Entry {
	alternates := make([]Alternate, 0, len(locale.Supported))
	for _, l := range locale.Supported {
		alternates = append(alternates, Alternate{Hreflang: l.Hreflang(), Href: origin + locale.Localize(l, path)})
	}
	out := make([]Entry, 0, len(locale.Supported))
	for i := range locale.Supported {
		out = append(out, Entry{
			URL:             alternates[i].Href,
			LastModified:    now,
			ChangeFrequency: freq,
			Priority:        priority,
			Alternates:      alternates,
		})
	}
	return out
}

// Origins picks the public origin for a request host.
type Origins struct {
	resolver locale.Resolver
	spanish  string
	english  string
}

func NewOrigins(resolver locale.Resolver, spanishOrigin, englishOrigin string) Origins {
	return Origins{
		resolver: resolver,
		spanish:  strings.TrimRight(spanishOrigin, "/"),
		english:  strings.TrimRight(englishOrigin, "/"),
	}
}

// For returns the Spanish origin for the Spanish host and the English origin for anything else.
func (o Origins) For(host string) string {
	if o.resolver.FromHost(host) == locale.Spanish {
		return o.spanish
	}
	return o.english
}
