package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_DATABASE_URL": "postgres://localhost/store",
	}

	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Site.SpanishHost != "artehechoamano.com" {
		t.Errorf("unexpected spanish host %s", cfg.Site.SpanishHost)
	}
	if cfg.Rates.TTL != 30*time.Minute {
		t.Errorf("expected 30m rate ttl, got %s", cfg.Rates.TTL)
	}
	if cfg.Redis.Enabled() {
		t.Errorf("expected redis disabled by default")
	}
	if cfg.Mail.Enabled() {
		t.Errorf("expected mail disabled without api key")
	}
	if cfg.Auth.CookieName != defaultAuthCookieName {
		t.Errorf("unexpected cookie name %s", cfg.Auth.CookieName)
	}
	if cfg.Site.FeaturedCapacity != 9 {
		t.Errorf("unexpected featured capacity %d", cfg.Site.FeaturedCapacity)
	}
}

func TestLoadPortFallsBackToPORT(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_DATABASE_URL": "postgres://localhost/store",
		"PORT":                    "3000",
	}
	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "3000" {
		t.Fatalf("expected PORT fallback, got %s", cfg.Server.Port)
	}

	env["STOREFRONT_SERVER_PORT"] = "9090"
	cfg, err = Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected explicit port to win, got %s", cfg.Server.Port)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_DATABASE_URL":        "postgres://db/store",
		"STOREFRONT_REDIS_ADDR":          "redis:6379",
		"STOREFRONT_RATES_TTL":           "10m",
		"STOREFRONT_RATES_API_KEY":       "k-123",
		"STOREFRONT_SITE_ENGLISH_ORIGIN": "https://example.com/",
		"STOREFRONT_SITE_SPANISH_HOST":   "Example.CR",
		"STOREFRONT_MAIL_API_KEY":        "re_123",
		"STOREFRONT_RATES_TIMEOUT":       "not-a-duration",
	}
	cfg, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.Redis.Enabled() || cfg.Redis.Addr != "redis:6379" {
		t.Errorf("expected redis enabled, got %+v", cfg.Redis)
	}
	if cfg.Rates.TTL != 10*time.Minute {
		t.Errorf("unexpected ttl %s", cfg.Rates.TTL)
	}
	if cfg.Rates.Timeout != defaultRatesTimeout {
		t.Errorf("expected invalid duration to fall back, got %s", cfg.Rates.Timeout)
	}
	if cfg.Site.EnglishOrigin != "https://example.com" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.Site.EnglishOrigin)
	}
	if cfg.Site.SpanishHost != "example.cr" {
		t.Errorf("expected lower-cased host, got %s", cfg.Site.SpanishHost)
	}
	if !cfg.Mail.Enabled() {
		t.Errorf("expected mail enabled")
	}
}

func TestLoadValidationFailure(t *testing.T) {
	env := map[string]string{
		"STOREFRONT_RATES_TTL":           "0s",
		"STOREFRONT_SITE_SPANISH_ORIGIN": "artehechoamano.com",
	}
	_, err := Load(WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	want := map[string]bool{"Database.URL": true, "Rates.TTL": true, "Site.SpanishOrigin": true}
	fields := vErr.Fields()
	if len(fields) != len(want) {
		t.Fatalf("unexpected fields %v", fields)
	}
	for _, f := range fields {
		if !want[f] {
			t.Fatalf("unexpected field %s in %v", f, fields)
		}
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local\nexport STOREFRONT_DATABASE_URL=\"postgres://dotenv/store\"\nSTOREFRONT_SERVER_PORT=7070\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}

	cfg, err := Load(WithEnvFile(path), WithoutSystemEnv(), WithEnvMap(map[string]string{"STOREFRONT_SERVER_PORT": "6060"}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Database.URL != "postgres://dotenv/store" {
		t.Errorf("expected dotenv database url, got %s", cfg.Database.URL)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("expected env map to override dotenv, got %s", cfg.Server.Port)
	}
}
