package sitemap

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/locale"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/platform/requestctx"
)

type stubSlugs struct {
	slugs []sql.NullString
	err   error
}

func (s stubSlugs) ListActiveProductSlugs(context.Context) ([]sql.NullString, error) {
	return s.slugs, s.err
}

func fixedClock() time.Time { return time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC) }

func newBuilder(t *testing.T, src SlugSource) *Builder {
	t.Helper()
	b, err := NewBuilder(BuilderDeps{Slugs: src, Clock: fixedClock})
	require.NoError(t, err)
	return b
}

func TestBuildCountsAndOrder(t *testing.T) {
	src := stubSlugs{slugs: []sql.NullString{
		{String: "Jarrón azul", Valid: true},
		{},
		{String: "", Valid: true},
		{String: "Taza", Valid: true},
	}}
	entries := newBuilder(t, src).Build(context.Background(), "https://artehechoamano.com/")

	require.Len(t, entries, 13*2+2*2)

	assert.Equal(t, "https://artehechoamano.com/es", entries[0].URL)
	assert.Equal(t, "https://artehechoamano.com/en", entries[1].URL)
	assert.Equal(t, "https://artehechoamano.com/es/products", entries[2].URL)
	assert.Equal(t, FreqMonthly, entries[0].ChangeFrequency)
	assert.Equal(t, 0.6, entries[0].Priority)
	assert.Equal(t, fixedClock(), entries[0].LastModified)

	product := entries[26]
	assert.Equal(t, "https://artehechoamano.com/es/product/Jarr%C3%B3n%20azul", product.URL)
	assert.Equal(t, FreqWeekly, product.ChangeFrequency)
	assert.Equal(t, 0.8, product.Priority)
	assert.Equal(t, []Alternate{
		{Hreflang: "es-CR", Href: "https://artehechoamano.com/es/product/Jarr%C3%B3n%20azul"},
		{Hreflang: "en-US", Href: "https://artehechoamano.com/en/product/Jarr%C3%B3n%20azul"},
	}, product.Alternates)
	assert.Equal(t, "https://artehechoamano.com/en/product/Taza", entries[29].URL)
}

func TestBuildKeepsStaticEntriesWhenSlugQueryFails(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ctx := requestctx.WithLogger(context.Background(), zap.New(core))

	entries := newBuilder(t, stubSlugs{err: errors.New("db down")}).Build(ctx, "https://handmadeart.store")

	assert.Len(t, entries, 26)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "sitemap: product slugs unavailable", logs.All()[0].Message)
}

func TestWriteXMLIncludesAlternates(t *testing.T) {
	entries := newBuilder(t, stubSlugs{slugs: []sql.NullString{{String: "Taza", Valid: true}}}).
		Build(context.Background(), "https://handmadeart.store")

	var buf bytes.Buffer
	require.NoError(t, WriteXML(&buf, entries))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "<?xml"))
	assert.Contains(t, out, `xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"`)
	assert.Contains(t, out, `xmlns:xhtml="http://www.w3.org/1999/xhtml"`)
	assert.Contains(t, out, `<xhtml:link rel="alternate" hreflang="en-US" href="https://handmadeart.store/en/product/Taza"></xhtml:link>`)
	assert.Contains(t, out, "<priority>0.8</priority>")
	assert.Contains(t, out, "<lastmod>2024-06-01T08:00:00Z</lastmod>")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 28, doc.Find("url").Length())
}

func TestWriteRobots(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRobots(&buf, "https://artehechoamano.com/", DefaultDisallow))

	want := "User-agent: *\nAllow: /\nDisallow: /admin\nDisallow: /api/\nDisallow: /checkout\n\nSitemap: https://artehechoamano.com/sitemap.xml\n"
	assert.Equal(t, want, buf.String())
}

func TestOriginsFor(t *testing.T) {
	o := NewOrigins(locale.NewResolver("artehechoamano.com"), "https://artehechoamano.com/", "https://handmadeart.store")
	assert.Equal(t, "https://artehechoamano.com", o.For("ArteHechoAMano.com:443"))
	assert.Equal(t, "https://handmadeart.store", o.For("handmadeart.store"))
	assert.Equal(t, "https://handmadeart.store", o.For(""))
}

func TestLoadRoutes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte("static:\n  - /\n  - about/\n  - /blog\n"), 0o600))

	routes, err := LoadRoutes(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"", "/about", "/blog"}, routes.Static)
	assert.Equal(t, DefaultDisallow, routes.Disallow)

	def, err := LoadRoutes("")
	require.NoError(t, err)
	assert.Len(t, def.Static, 13)

	_, err = LoadRoutes(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestNewBuilderRequiresSource(t *testing.T) {
	_, err := NewBuilder(BuilderDeps{})
	assert.Error(t, err)
}
