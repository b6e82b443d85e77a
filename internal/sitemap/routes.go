package sitemap

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultStaticPaths are the unprefixed routes listed for every locale. "" is the home page.
var DefaultStaticPaths = []string{
	"",
	"/products",
	"/categories",
	"/featured",
	"/gifts",
	"/search",
	"/about",
	"/contact",
	"/shipping",
	"/returns",
	"/faq",
	"/privacy",
	"/terms",
}

// DefaultDisallow are the robots.txt exclusions.
var DefaultDisallow = []string{"/admin", "/api/", "/checkout"}

// Routes is the site file: static paths and robots exclusions.
type Routes struct {
	Static   []string `yaml:"static"`
	Disallow []string `yaml:"disallow"`
}

// DefaultRoutes returns copies of the built-in lists.
func DefaultRoutes() Routes {
	return Routes{
		Static:   append([]string(nil), DefaultStaticPaths...),
		Disallow: append([]string(nil), DefaultDisallow...),
	}
}

// LoadRoutes reads a YAML site file. Lists missing from the file keep their defaults; an empty
// path returns DefaultRoutes.
func LoadRoutes(path string) (Routes, error) {
	routes := DefaultRoutes()
	path = strings.TrimSpace(path)
	if path == "" {
		return routes, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Routes{}, fmt.Errorf("sitemap: read site file: %w", err)
	}
	var file Routes
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Routes{}, fmt.Errorf("sitemap: parse site file %s: %w", path, err)
	}
	if file.Static != nil {
		static := make([]string, 0, len(file.Static))
		for _, p := range file.Static {
			static = append(static, normalizePath(p))
		}
		routes.Static = static
	}
	if file.Disallow != nil {
		routes.Disallow = file.Disallow
	}
	return routes, nil
}

// normalizePath maps "/" to "" and ensures a leading slash otherwise.
func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
