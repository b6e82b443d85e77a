// Package locale resolves the storefront language from the request path prefix or host.
package locale

import (
	"context"
	"net"
	"strings"

	"golang.org/x/text/language"
)

// Locale is one of the storefront's two languages.
type Locale string

const (
	Spanish Locale = "es"
	English Locale = "en"
)

// DefaultSpanishHost is the canonical domain served in Spanish by default.
const DefaultSpanishHost = "artehechoamano.com"

// Supported lists the locales in the order they are emitted in sitemaps and alternates.
var Supported = []Locale{Spanish, English}

var tags = map[Locale]language.Tag{
	Spanish: language.MustParse("es-CR"),
	English: language.MustParse("en-US"),
}

// Parse validates a raw path segment or query value.
func Parse(raw string) (Locale, bool) {
	switch Locale(strings.ToLower(strings.TrimSpace(raw))) {
	case Spanish:
		return Spanish, true
	case English:
		return English, true
	}
	return "", false
}

func (l Locale) String() string { return string(l) }

// Tag returns the regional language tag used for hreflang and the html lang attribute.
func (l Locale) Tag() language.Tag {
	if t, ok := tags[l]; ok {
		return t
	}
	return tags[English]
}

// Hreflang is the BCP 47 form of Tag.
func (l Locale) Hreflang() string { return l.Tag().String() }

// Resolver derives the default locale from the request host.
type Resolver struct {
	spanishHost string
}

// NewResolver builds a resolver for the given Spanish domain. Empty means DefaultSpanishHost.
func NewResolver(spanishHost string) Resolver {
	spanishHost = normalizeHost(spanishHost)
	if spanishHost == "" {
		spanishHost = DefaultSpanishHost
	}
	return Resolver{spanishHost: spanishHost}
}

// SpanishHost returns the configured canonical Spanish domain.
func (r Resolver) SpanishHost() string { return r.spanishHost }

// FromHost returns Spanish only when host is the canonical Spanish domain; anything else,
// including an absent host, is English.
func (r Resolver) FromHost(host string) Locale {
	if r.spanishHost == "" {
		r = NewResolver("")
	}
	if normalizeHost(host) == r.spanishHost {
		return Spanish
	}
	return English
}

// FromHost resolves against DefaultSpanishHost.
func FromHost(host string) Locale {
	return NewResolver(DefaultSpanishHost).FromHost(host)
}

// Localize prefixes path with the locale segment: ("es", "/about") => "/es/about", ("en", "/") => "/en".
func Localize(l Locale, path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path == "/" {
		return "/" + string(l)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "/" + string(l) + path
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}

type ctxKey struct{}

// WithLocale stores the locale on the context.
func WithLocale(ctx context.Context, l Locale) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the request locale, English when none was resolved.
func FromContext(ctx context.Context) Locale {
	if ctx == nil {
		return English
	}
	if l, ok := ctx.Value(ctxKey{}).(Locale); ok && l != "" {
		return l
	}
	return English
}
