package nav

import (
	"path"
	"strings"

	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/locale"
)

// Item represents a top-level navigation item.
type Item struct {
	Path     string // unprefixed, e.g. "/products"
	LabelKey string // i18n key, e.g. "nav.products"
}

// RenderedItem is a view model for templates.
type RenderedItem struct {
	Href     string
	LabelKey string
	Active   bool
}

// Crumb represents a breadcrumb entry. If LabelKey is empty, use Label.
type Crumb struct {
	Href     string
	LabelKey string
	Label    string
	Active   bool
}

// Main is the primary navigation definition.
var Main = []Item{
	{Path: "/products", LabelKey: "nav.products"},
	{Path: "/categories", LabelKey: "nav.categories"},
	{Path: "/featured", LabelKey: "nav.featured"},
	{Path: "/gifts", LabelKey: "nav.gifts"},
	{Path: "/about", LabelKey: "nav.about"},
	{Path: "/contact", LabelKey: "nav.contact"},
}

// sections maps non-menu top-level segments to labels for breadcrumbs.
var sections = map[string]string{
	"/product": "nav.products",
	"/search":  "nav.search",
	"/admin":   "nav.admin",
	"/login":   "nav.login",
}

// Build renders navigation items for loc with active state given the unprefixed current path.
func Build(loc locale.Locale, currentPath string) []RenderedItem {
	if currentPath == "" {
		currentPath = "/"
	}
	items := make([]RenderedItem, 0, len(Main))
	for _, it := range Main {
		items = append(items, RenderedItem{
			Href:     locale.Localize(loc, it.Path),
			LabelKey: it.LabelKey,
			Active:   isActive(it.Path, currentPath),
		})
	}
	return items
}

func isActive(itemPath, currentPath string) bool {
	if itemPath == "/" {
		return currentPath == "/"
	}
	if currentPath == itemPath {
		return true
	}
	return strings.HasPrefix(currentPath, itemPath+"/")
}

// Breadcrumbs builds breadcrumb entries from the unprefixed current path.
// The product detail section links back to the listing, and the last segment may be given
// an explicit label (e.g. the product name).
func Breadcrumbs(loc locale.Locale, currentPath, lastLabel string) []Crumb {
	if currentPath == "" {
		currentPath = "/"
	}
	crumbs := []Crumb{{Href: locale.Localize(loc, "/"), LabelKey: "nav.home", Active: currentPath == "/"}}
	if currentPath == "/" {
		return crumbs
	}

	clean := path.Clean(currentPath)
	parts := strings.Split(strings.TrimPrefix(clean, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return crumbs
	}

	top := "/" + parts[0]
	href := top
	if top == "/product" {
		href = "/products"
	}
	crumbs = append(crumbs, Crumb{
		Href:     locale.Localize(loc, href),
		LabelKey: labelFor(top),
		Label:    titleFromSegment(parts[0]),
		Active:   len(parts) == 1,
	})

	acc := top
	for i := 1; i < len(parts); i++ {
		acc = acc + "/" + parts[i]
		label := titleFromSegment(parts[i])
		if i == len(parts)-1 && lastLabel != "" {
			label = lastLabel
		}
		crumbs = append(crumbs, Crumb{
			Href:   locale.Localize(loc, acc),
			Label:  label,
			Active: i == len(parts)-1,
		})
	}
	return crumbs
}

func labelFor(top string) string {
	for _, it := range Main {
		if it.Path == top {
			return it.LabelKey
		}
	}
	return sections[top]
}

func titleFromSegment(seg string) string {
	if seg == "" {
		return seg
	}
	s := strings.ReplaceAll(seg, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")
	r := []rune(s)
	if r[0] >= 'a' && r[0] <= 'z' {
		r[0] -= 'a' - 'A'
	}
	return string(r)
}
