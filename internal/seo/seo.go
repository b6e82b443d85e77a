package seo

import (
	"strings"

	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/locale"
)

type OpenGraph struct {
	Title       string
	Description string
	Image       string
	Type        string
	Locale      string
}

type Twitter struct {
	Card  string
	Image string
}

// Alternate is one <link rel="alternate" hreflang> entry.
type Alternate struct {
	Hreflang string
	Href     string
}

type Meta struct {
	Title       string
	Description string
	Canonical   string
	Lang        string
	Alternates  []Alternate
	OG          OpenGraph
	Twitter     Twitter
	NoIndex     bool
}

// ForPage builds meta for path (unprefixed, e.g. "/about") rendered in loc on origin.
// Alternates cover every supported locale plus x-default, which points at the unprefixed
// path so the host decides the language.
func ForPage(origin, path string, loc locale.Locale, title, description string) Meta {
	origin = strings.TrimRight(origin, "/")
	if path == "" {
		path = "/"
	}
	alts := make([]Alternate, 0, len(locale.Supported)+1)
	for _, l := range locale.Supported {
		alts = append(alts, Alternate{Hreflang: l.Hreflang(), Href: origin + locale.Localize(l, path)})
	}
	alts = append(alts, Alternate{Hreflang: "x-default", Href: origin + path})

	canonical := origin + locale.Localize(loc, path)
	return Meta{
		Title:       title,
		Description: description,
		Canonical:   canonical,
		Lang:        loc.Hreflang(),
		Alternates:  alts,
		OG: OpenGraph{
			Title:       title,
			Description: description,
			Type:        "website",
			Locale:      strings.ReplaceAll(loc.Hreflang(), "-", "_"),
		},
		Twitter: Twitter{Card: "summary_large_image"},
	}
}

// WithImage sets the share image for both OpenGraph and Twitter cards.
func (m Meta) WithImage(url string) Meta {
	m.OG.Image = url
	m.Twitter.Image = url
	return m
}
