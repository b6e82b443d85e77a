package locale

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFromHost(t *testing.T) {
	cases := []struct {
		host string
		want Locale
	}{
		{"artehechoamano.com", Spanish},
		{"ArteHechoAMano.com", Spanish},
		{"artehechoamano.com:443", Spanish},
		{"handmadeart.store", English},
		{"www.artehechoamano.com", English},
		{"artehechoamano.com.evil.net", English},
		{"", English},
	}
	for _, tc := range cases {
		if got := FromHost(tc.host); got != tc.want {
			t.Errorf("FromHost(%q) = %s, want %s", tc.host, got, tc.want)
		}
	}
}

func TestResolverUsesConfiguredHost(t *testing.T) {
	res := NewResolver("tienda.example.cr")
	if got := res.FromHost("tienda.example.cr"); got != Spanish {
		t.Fatalf("expected spanish, got %s", got)
	}
	if got := res.FromHost("artehechoamano.com"); got != English {
		t.Fatalf("expected english for non-configured host, got %s", got)
	}
	var zero Resolver
	if got := zero.FromHost("artehechoamano.com"); got != Spanish {
		t.Fatalf("expected zero resolver to use default host, got %s", got)
	}
}

func TestLocalize(t *testing.T) {
	cases := map[string]string{
		"":                "/es",
		"/":               "/es",
		"/about":          "/es/about",
		"product/vasija":  "/es/product/vasija",
		"/product/vasija": "/es/product/vasija",
	}
	for in, want := range cases {
		if got := Localize(Spanish, in); got != want {
			t.Errorf("Localize(es, %q) = %q, want %q", in, got, want)
		}
	}
}

func TestHreflang(t *testing.T) {
	if got := Spanish.Hreflang(); got != "es-CR" {
		t.Fatalf("unexpected spanish tag %s", got)
	}
	if got := English.Hreflang(); got != "en-US" {
		t.Fatalf("unexpected english tag %s", got)
	}
}

func TestMiddlewarePrefixWinsOverHost(t *testing.T) {
	var gotPath string
	var gotLocale Locale
	h := Middleware(NewResolver(""))(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotLocale = FromContext(r.Context())
	}))

	cases := []struct {
		host, path   string
		wantPath     string
		wantLocale   Locale
		wantLanguage string
	}{
		{"artehechoamano.com", "/en/product/vasija", "/product/vasija", English, "en"},
		{"handmadeart.store", "/es", "/", Spanish, "es"},
		{"artehechoamano.com", "/products", "/products", Spanish, "es"},
		{"handmadeart.store", "/products", "/products", English, "en"},
		{"handmadeart.store", "/espanol", "/espanol", English, "en"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "http://"+tc.host+tc.path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if gotPath != tc.wantPath || gotLocale != tc.wantLocale {
			t.Errorf("%s%s: got path=%q locale=%s, want path=%q locale=%s", tc.host, tc.path, gotPath, gotLocale, tc.wantPath, tc.wantLocale)
		}
		if cl := rec.Header().Get("Content-Language"); cl != tc.wantLanguage {
			t.Errorf("%s%s: Content-Language = %q", tc.host, tc.path, cl)
		}
	}
}

func TestMiddlewareStripsRawPath(t *testing.T) {
	var raw, path string
	h := Middleware(NewResolver(""))(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		raw, path = r.URL.RawPath, r.URL.Path
	}))
	req := httptest.NewRequest(http.MethodGet, "/es/product/Caja%2Fmadera", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if raw != "/product/Caja%2Fmadera" {
		t.Fatalf("unexpected raw path %q", raw)
	}
	if path != "/product/Caja/madera" {
		t.Fatalf("unexpected path %q", path)
	}
}

func TestFromContextDefaultsToEnglish(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := FromContext(req.Context()); got != English {
		t.Fatalf("expected english default, got %s", got)
	}
}
