package handlers

import (
	"html/template"
	"net/http"

	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/catalog"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/format"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/locale"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/nav"
	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/seo"
)

// pageView is the data passed to the base layout.
type pageView struct {
	Lang      string
	Heading   string
	Meta      seo.Meta
	JSONLD    []template.JS
	Nav       []nav.RenderedItem
	Crumbs    []nav.Crumb
	Languages []languageLink
	HomeHref  string
	Search    string
	Year      int
	Body      any
}

type languageLink struct {
	Code   string
	Href   string
	Active bool
}

type productCard struct {
	Name     string
	Href     string
	Image    string
	Price    string
	Original string
	Percent  string
}

// cardSlot and cardList carry the page language into the shared card partials.
type cardSlot struct {
	Lang string
	Card productCard
}

type cardList struct {
	Lang     string
	Products []productCard
}

func newCardSlot(lang string, c productCard) cardSlot { return cardSlot{Lang: lang, Card: c} }

func newCardList(lang string, products []productCard) cardList {
	return cardList{Lang: lang, Products: products}
}

type groupView struct {
	Label    string
	Href     string
	Products []productCard
}

type homeView struct {
	Featured []productCard
	Grid     []groupView
	Gifts    []productCard
}

type filterView struct {
	Label  string
	Href   string
	Active bool
}

type listingView struct {
	Filters  []filterView
	Products []productCard
}

type searchView struct {
	Query    string
	Action   string
	Products []productCard
}

type productView struct {
	Card        productCard
	Description template.HTML
	Images      []string
	Category    string
	Back        string
}

type loginView struct {
	Action string
}

type adminRow struct {
	ID       int64
	Name     string
	Href     string
	Price    string
	Active   bool
	Featured bool
}

type errorView struct {
	Status  int
	Message string
}

// newView fills the layout fields shared by every page. path is unprefixed.
func (h *PageHandlers) newView(r *http.Request, path, title, description string) pageView {
	loc := locale.FromContext(r.Context())
	lang := loc.String()
	heading := title
	if title != "" && path != "/" {
		title = title + " | " + h.bundle.T(lang, "site.name")
	}

	languages := make([]languageLink, 0, len(locale.Supported))
	for _, l := range locale.Supported {
		languages = append(languages, languageLink{Code: l.String(), Href: locale.Localize(l, path), Active: l == loc})
	}

	return pageView{
		Lang:      lang,
		Heading:   heading,
		Meta:      seo.ForPage(h.origins.For(r.Host), path, loc, title, description),
		Nav:       nav.Build(loc, path),
		Crumbs:    nav.Breadcrumbs(loc, path, ""),
		Languages: languages,
		HomeHref:  locale.Localize(loc, "/"),
		Search:    locale.Localize(loc, "/search"),
		Year:      h.clock().Year(),
	}
}

func (h *PageHandlers) cards(loc locale.Locale, products []catalog.Product) []productCard {
	out := make([]productCard, 0, len(products))
	for _, p := range products {
		out = append(out, h.card(loc, p))
	}
	return out
}

func (h *PageHandlers) card(loc locale.Locale, p catalog.Product) productCard {
	c := productCard{
		Name:  p.Name,
		Href:  locale.Localize(loc, p.Path()),
		Image: p.Image(),
	}
	m, ok := p.DisplayPrice(loc)
	if !ok {
		return c
	}
	c.Price = format.Price(m.Amount, m.Currency, loc)
	if d, discounted := p.Discounted(m); discounted {
		c.Original = c.Price
		c.Price = format.Price(d.Amount, d.Currency, loc)
		c.Percent = p.DiscountPercentage.Decimal.String()
	}
	return c
}

func priceLabel(p catalog.Product, loc locale.Locale) string {
	m, ok := p.DisplayPrice(loc)
	if !ok {
		return ""
	}
	return format.Price(m.Amount, m.Currency, loc)
}
