package handlers

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/auth"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/catalog"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/content"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/i18n"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/locale"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/nav"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/platform/requestctx"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/seo"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	searchLimit        = 48
	metaDescriptionMax = 160
)

// infoPages are the informational routes whose copy lives in the i18n bundle under page.<name>.
var infoPages = []string{"about", "contact", "shipping", "returns", "faq", "privacy", "terms"}

// ProductCatalog is the read side of the catalog used by the pages.
type ProductCatalog interface {
	ListCategories(ctx context.Context) ([]catalog.Category, error)
	ListActiveProducts(ctx context.Context, filter catalog.ProductFilter) ([]catalog.Product, error)
	GetActiveProductByName(ctx context.Context, name string) (catalog.Product, error)
	ListAllProducts(ctx context.Context) ([]catalog.Product, error)
}

// HomeSource produces the distributed home page buckets.
type HomeSource interface {
	Load(ctx context.Context) catalog.Distribution
}

// PageDeps bundles constructor inputs for the page handlers.
type PageDeps struct {
	Catalog     ProductCatalog
	Home        HomeSource
	Bundle      *i18n.Bundle
	Content     *content.Renderer
	Origins     OriginResolver
	Verifier    *auth.Verifier
	Profiles    auth.ProfileSource
	LoginPath   string
	ProviderURL string
	Clock       func() time.Time
}

// PageHandlers renders the storefront HTML pages.
type PageHandlers struct {
	catalog     ProductCatalog
	home        HomeSource
	bundle      *i18n.Bundle
	content     *content.Renderer
	origins     OriginResolver
	verifier    *auth.Verifier
	profiles    auth.ProfileSource
	loginPath   string
	providerURL string
	clock       func() time.Time
	pages       map[string]*template.Template
}

func NewPageHandlers(deps PageDeps) (*PageHandlers, error) {
	if deps.Catalog == nil {
		return nil, errors.New("handlers: page handlers require a catalog")
	}
	if deps.Home == nil {
		return nil, errors.New("handlers: page handlers require a home source")
	}
	if deps.Bundle == nil {
		return nil, errors.New("handlers: page handlers require an i18n bundle")
	}
	if deps.Origins == nil {
		return nil, errors.New("handlers: page handlers require an origin resolver")
	}
	renderer := deps.Content
	if renderer == nil {
		renderer = content.NewRenderer()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	loginPath := strings.TrimSpace(deps.LoginPath)
	if loginPath == "" {
		loginPath = "/login"
	}

	pages, err := parsePages(deps.Bundle)
	if err != nil {
		return nil, err
	}
	return &PageHandlers{
		catalog:     deps.Catalog,
		home:        deps.Home,
		bundle:      deps.Bundle,
		content:     renderer,
		origins:     deps.Origins,
		verifier:    deps.Verifier,
		profiles:    deps.Profiles,
		loginPath:   loginPath,
		providerURL: strings.TrimSpace(deps.ProviderURL),
		clock:       func() time.Time { return clock().UTC() },
		pages:       pages,
	}, nil
}

var pageFiles = []string{
	"home", "products", "categories", "bucket", "search", "product",
	"info", "login", "admin", "error",
}

// parsePages builds one template set per page: the shared layout plus the page's content block.
func parsePages(bundle *i18n.Bundle) (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"t":        bundle.T,
		"tf":       bundle.Tf,
		"cardData": newCardSlot,
		"cardList": newCardList,
	}
	layout, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/partials.html")
	if err != nil {
		return nil, fmt.Errorf("handlers: parse layout: %w", err)
	}
	out := make(map[string]*template.Template, len(pageFiles))
	for _, name := range pageFiles {
		clone, err := layout.Clone()
		if err != nil {
			return nil, fmt.Errorf("handlers: clone layout: %w", err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name+".html"); err != nil {
			return nil, fmt.Errorf("handlers: parse %s: %w", name, err)
		}
		out[name] = clone
	}
	return out, nil
}

// Routes registers every page on the site router. Paths are unprefixed; the locale middleware
// strips /es and /en before routing.
func (h *PageHandlers) Routes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/", h.homePage)
	r.Get("/products", h.productsPage)
	r.Get("/categories", h.categoriesPage)
	r.Get("/featured", h.featuredPage)
	r.Get("/gifts", h.giftsPage)
	r.Get("/search", h.searchPage)
	r.Get("/product/{slug}", h.productPage)
	for _, name := range infoPages {
		r.Get("/"+name, h.infoPage(name))
	}
	r.Get(h.loginPath, h.loginPage)

	r.Group(func(admin chi.Router) {
		admin.Use(auth.RequireUser(h.verifier, h.loginPath), auth.RequireAdmin(h.profiles))
		admin.Get("/admin", h.adminPage)
	})
}

// NotFound renders the localized 404 page.
func (h *PageHandlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.renderError(w, r, http.StatusNotFound, "error.not_found")
}

func (h *PageHandlers) homePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	loc := locale.FromContext(ctx)
	dist := h.home.Load(ctx)

	grid := make([]groupView, 0, len(dist.Grid))
	for _, g := range dist.Grid {
		if len(g.Products) == 0 {
			continue
		}
		grid = append(grid, groupView{
			Label:    g.Category.Label(loc),
			Href:     categoryHref(loc, g.Category.ID),
			Products: h.cards(loc, g.Products),
		})
	}
	body := homeView{
		Featured: h.cards(loc, dist.Featured),
		Grid:     grid,
		Gifts:    h.cards(loc, dist.Gifts),
	}

	lang := loc.String()
	view := h.newView(r, "/", h.bundle.T(lang, "home.title"), h.bundle.T(lang, "site.description"))
	origin := h.origins.For(r.Host)
	view.JSONLD = append(view.JSONLD,
		seo.Script(seo.Organization(h.bundle.T(lang, "site.name"), origin, "")),
		seo.Script(seo.WebSite(h.bundle.T(lang, "site.name"), origin, origin+locale.Localize(loc, "/search")+"?q=")),
	)
	view.Body = body
	h.render(w, r, http.StatusOK, "home", view)
}

func (h *PageHandlers) productsPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	loc := locale.FromContext(ctx)
	lang := loc.String()

	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		requestctx.Logger(ctx).Warn("pages: categories unavailable", zap.Error(err))
		categories = nil
	}

	filter := catalog.ProductFilter{}
	var selected int64
	if raw := strings.TrimSpace(r.URL.Query().Get("category")); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			filter.CategoryID = &id
			selected = id
		}
	}
	products, err := h.catalog.ListActiveProducts(ctx, filter)
	if err != nil {
		requestctx.Logger(ctx).Warn("pages: products unavailable", zap.Error(err))
		products = nil
	}

	filters := make([]filterView, 0, len(categories)+1)
	filters = append(filters, filterView{Label: h.bundle.T(lang, "products.all"), Href: locale.Localize(loc, "/products"), Active: selected == 0})
	for _, c := range categories {
		filters = append(filters, filterView{Label: c.Label(loc), Href: categoryHref(loc, c.ID), Active: c.ID == selected})
	}

	view := h.newView(r, "/products", h.bundle.T(lang, "products.title"), h.bundle.T(lang, "products.description"))
	view.Body = listingView{Filters: filters, Products: h.cards(loc, products)}
	h.render(w, r, http.StatusOK, "products", view)
}

func (h *PageHandlers) categoriesPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	loc := locale.FromContext(ctx)
	lang := loc.String()

	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		requestctx.Logger(ctx).Warn("pages: categories unavailable", zap.Error(err))
		categories = nil
	}
	links := make([]filterView, 0, len(categories))
	for _, c := range categories {
		links = append(links, filterView{Label: c.Label(loc), Href: categoryHref(loc, c.ID)})
	}

	view := h.newView(r, "/categories", h.bundle.T(lang, "categories.title"), h.bundle.T(lang, "categories.description"))
	view.Body = links
	h.render(w, r, http.StatusOK, "categories", view)
}

func (h *PageHandlers) featuredPage(w http.ResponseWriter, r *http.Request) {
	h.bucketPage(w, r, "/featured", "featured", func(d catalog.Distribution) []catalog.Product { return d.Featured })
}

func (h *PageHandlers) giftsPage(w http.ResponseWriter, r *http.Request) {
	h.bucketPage(w, r, "/gifts", "gifts", func(d catalog.Distribution) []catalog.Product { return d.Gifts })
}

func (h *PageHandlers) bucketPage(w http.ResponseWriter, r *http.Request, path, key string, pick func(catalog.Distribution) []catalog.Product) {
	ctx := r.Context()
	loc := locale.FromContext(ctx)
	lang := loc.String()

	view := h.newView(r, path, h.bundle.T(lang, key+".title"), h.bundle.T(lang, key+".description"))
	view.Body = h.cards(loc, pick(h.home.Load(ctx)))
	h.render(w, r, http.StatusOK, "bucket", view)
}

func (h *PageHandlers) searchPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	loc := locale.FromContext(ctx)
	lang := loc.String()
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	body := searchView{Query: query, Action: locale.Localize(loc, "/search")}
	if query != "" {
		products, err := h.catalog.ListActiveProducts(ctx, catalog.ProductFilter{Query: query, Limit: searchLimit})
		if err != nil {
			requestctx.Logger(ctx).Warn("pages: search failed", zap.String("query", query), zap.Error(err))
			products = nil
		}
		body.Products = h.cards(loc, products)
	}

	view := h.newView(r, "/search", h.bundle.T(lang, "search.title"), h.bundle.T(lang, "search.description"))
	if query != "" {
		view.Meta.NoIndex = true
	}
	view.Body = body
	h.render(w, r, http.StatusOK, "search", view)
}

func (h *PageHandlers) productPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	loc := locale.FromContext(ctx)
	lang := loc.String()

	slug := chi.URLParam(r, "slug")
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(slug); err == nil {
			slug = unescaped
		}
	}

	product, err := h.catalog.GetActiveProductByName(ctx, slug)
	if errors.Is(err, catalog.ErrProductNotFound) {
		h.NotFound(w, r)
		return
	}
	if err != nil {
		requestctx.Logger(ctx).Error("pages: product lookup failed", zap.String("slug", slug), zap.Error(err))
		h.renderError(w, r, http.StatusInternalServerError, "error.server")
		return
	}

	description, err := h.content.Render(product.Description)
	if err != nil {
		requestctx.Logger(ctx).Warn("pages: description render failed", zap.Int64("product_id", product.ID), zap.Error(err))
		description = template.HTML(template.HTMLEscapeString(product.Description))
	}

	var categoryLabel string
	if product.CategoryID != nil {
		categories, err := h.catalog.ListCategories(ctx)
		if err != nil {
			requestctx.Logger(ctx).Warn("pages: categories unavailable", zap.Error(err))
		}
		for _, c := range categories {
			if c.ID == *product.CategoryID {
				categoryLabel = c.Label(loc)
				break
			}
		}
	}

	path := product.Path()
	view := h.newView(r, path, product.Name, h.content.Plain(product.Description, metaDescriptionMax))
	view.Crumbs = nav.Breadcrumbs(loc, path, product.Name)
	if img := product.Image(); img != "" {
		view.Meta = view.Meta.WithImage(img)
	}
	view.Meta.OG.Type = "product"

	origin := h.origins.For(r.Host)
	var offer *seo.Offer
	if m, ok := product.DisplayPrice(loc); ok {
		if d, discounted := product.Discounted(m); discounted {
			m = d
		}
		offer = &seo.Offer{Price: m.Amount.StringFixed(2), Currency: m.Currency, InStock: product.IsActive, SellerURL: view.Meta.Canonical}
	}
	crumbs := make([]seo.BreadcrumbItem, 0, len(view.Crumbs))
	for _, c := range view.Crumbs {
		name := c.Label
		if c.LabelKey != "" {
			name = h.bundle.T(lang, c.LabelKey)
		}
		crumbs = append(crumbs, seo.BreadcrumbItem{Name: name, Item: origin + c.Href})
	}
	view.JSONLD = append(view.JSONLD,
		seo.Script(seo.Product(product.Name, h.content.Plain(product.Description, 0), view.Meta.Canonical, product.Images(), offer)),
		seo.Script(seo.BreadcrumbList(crumbs)),
	)

	view.Body = productView{
		Card:        h.card(loc, product),
		Description: description,
		Images:      product.Images(),
		Category:    categoryLabel,
		Back:        locale.Localize(loc, "/products"),
	}
	h.render(w, r, http.StatusOK, "product", view)
}

func (h *PageHandlers) infoPage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		lang := locale.FromContext(ctx).String()
		key := "page." + name

		bodyText := h.bundle.T(lang, key+".body")
		body, err := h.content.Render(bodyText)
		if err != nil {
			requestctx.Logger(ctx).Warn("pages: info render failed", zap.String("page", name), zap.Error(err))
			body = template.HTML(template.HTMLEscapeString(bodyText))
		}
		view := h.newView(r, "/"+name, h.bundle.T(lang, key+".title"), h.content.Plain(bodyText, metaDescriptionMax))
		view.Body = body
		h.render(w, r, http.StatusOK, "info", view)
	}
}

func (h *PageHandlers) loginPage(w http.ResponseWriter, r *http.Request) {
	loc := locale.FromContext(r.Context())
	lang := loc.String()

	redirect := safeRedirect(r.URL.Query().Get("redirect"), locale.Localize(loc, "/"))
	view := h.newView(r, h.loginPath, h.bundle.T(lang, "login.title"), h.bundle.T(lang, "login.body"))
	view.Meta.NoIndex = true
	view.Body = loginView{Action: h.providerLink(r, redirect)}
	h.render(w, r, http.StatusOK, "login", view)
}

// providerLink points the sign-in button at the hosted provider, asking it to return to redirect
// on this origin. Without a provider URL the button reloads the login page.
func (h *PageHandlers) providerLink(r *http.Request, redirect string) string {
	if h.providerURL == "" {
		return locale.Localize(locale.FromContext(r.Context()), h.loginPath)
	}
	u, err := url.Parse(h.providerURL)
	if err != nil {
		return h.providerURL
	}
	q := u.Query()
	q.Set("redirect_to", h.origins.For(r.Host)+redirect)
	u.RawQuery = q.Encode()
	return u.String()
}

func (h *PageHandlers) adminPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	loc := locale.FromContext(ctx)
	lang := loc.String()

	products, err := h.catalog.ListAllProducts(ctx)
	if err != nil {
		requestctx.Logger(ctx).Error("pages: admin product list failed", zap.Error(err))
		h.renderError(w, r, http.StatusInternalServerError, "error.server")
		return
	}
	rows := make([]adminRow, 0, len(products))
	for _, p := range products {
		rows = append(rows, adminRow{
			ID:       p.ID,
			Name:     p.Name,
			Href:     locale.Localize(loc, p.Path()),
			Price:    priceLabel(p, loc),
			Active:   p.IsActive,
			Featured: p.IsFeatured,
		})
	}

	view := h.newView(r, "/admin", h.bundle.T(lang, "admin.title"), "")
	view.Meta.NoIndex = true
	view.Body = rows
	h.render(w, r, http.StatusOK, "admin", view)
}

func (h *PageHandlers) renderError(w http.ResponseWriter, r *http.Request, status int, key string) {
	lang := locale.FromContext(r.Context()).String()
	view := h.newView(r, r.URL.Path, h.bundle.T(lang, key+".title"), h.bundle.T(lang, key+".body"))
	view.Meta.NoIndex = true
	view.Body = errorView{Status: status, Message: h.bundle.T(lang, key+".body")}
	h.render(w, r, status, "error", view)
}

// render executes the page's base layout into a buffer so a template failure never leaves a
// half-written response.
func (h *PageHandlers) render(w http.ResponseWriter, r *http.Request, status int, page string, view pageView) {
	t, ok := h.pages[page]
	if !ok {
		requestctx.Logger(r.Context()).Error("pages: unknown template", zap.String("page", page))
		http.Error(w, "template not initialized", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", view); err != nil {
		requestctx.Logger(r.Context()).Error("pages: template exec failed", zap.String("page", page), zap.Error(err))
		http.Error(w, "template exec error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func categoryHref(loc locale.Locale, id int64) string {
	return locale.Localize(loc, "/products") + "?category=" + strconv.FormatInt(id, 10)
}

// safeRedirect accepts only same-origin absolute paths.
func safeRedirect(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return fallback
	}
	return raw
}
