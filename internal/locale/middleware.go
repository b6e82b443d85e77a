package locale

import (
	"net/http"
	"strings"
)

// Middleware resolves the request locale. A leading /es or /en segment wins and is stripped
// from the path so routes are registered once; otherwise the host decides.
func Middleware(res Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc, stripped, ok := splitPrefix(r.URL.Path)
			if ok {
				r2 := r.Clone(r.Context())
				r2.URL.Path = stripped
				if r.URL.RawPath != "" {
					if _, raw, rawOK := splitPrefix(r.URL.RawPath); rawOK {
						r2.URL.RawPath = raw
					} else {
						r2.URL.RawPath = ""
					}
				}
				r = r2
			} else {
				loc = res.FromHost(r.Host)
			}
			w.Header().Set("Content-Language", loc.String())
			next.ServeHTTP(w, r.WithContext(WithLocale(r.Context(), loc)))
		})
	}
}

func splitPrefix(path string) (Locale, string, bool) {
	trimmed := strings.TrimPrefix(path, "/")
	seg, rest, _ := strings.Cut(trimmed, "/")
	loc, ok := Parse(seg)
	if !ok || seg != string(loc) {
		return "", path, false
	}
	return loc, "/" + rest, true
}
