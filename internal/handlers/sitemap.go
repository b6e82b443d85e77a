package handlers

import (
	"bytes"
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/platform/httpx"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/platform/requestctx"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/sitemap"
)

const seoCacheControl = "public, max-age=3600"

// SitemapBuilder produces the localized URL list for an origin.
type SitemapBuilder interface {
	Build(ctx context.Context, origin string) []sitemap.Entry
	Disallow() []string
}

// OriginResolver maps a request host to the site origin.
type OriginResolver interface {
	For(host string) string
}

// SitemapHandlers serves /sitemap.xml and /robots.txt from one builder.
type SitemapHandlers struct {
	builder SitemapBuilder
	origins OriginResolver
}

func NewSitemapHandlers(builder SitemapBuilder, origins OriginResolver) *SitemapHandlers {
	return &SitemapHandlers{builder: builder, origins: origins}
}

func (h *SitemapHandlers) Routes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/sitemap.xml", h.sitemapXML)
	r.Get("/robots.txt", h.robots)
}

func (h *SitemapHandlers) sitemapXML(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries := h.builder.Build(ctx, h.origins.For(r.Host))

	var buf bytes.Buffer
	if err := sitemap.WriteXML(&buf, entries); err != nil {
		requestctx.Logger(ctx).Error("sitemap: render failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("sitemap_failed", "sitemap unavailable", http.StatusInternalServerError))
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Cache-Control", seoCacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *SitemapHandlers) robots(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	_ = sitemap.WriteRobots(&buf, h.origins.For(r.Host), h.builder.Disallow())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", seoCacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
