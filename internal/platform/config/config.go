package config

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile          = ".env"
	defaultPort             = "8080"
	defaultReadTimeout      = 15 * time.Second
	defaultWriteTimeout     = 30 * time.Second
	defaultIdleTimeout      = 120 * time.Second
	defaultShutdownTimeout  = 15 * time.Second
	defaultDBMaxOpenConns   = 10
	defaultDBMaxIdleConns   = 5
	defaultDBConnLifetime   = 30 * time.Minute
	defaultSpanishHost      = "artehechoamano.com"
	defaultSpanishOrigin    = "https://artehechoamano.com"
	defaultEnglishOrigin    = "https://handmadeart.store"
	defaultRatesKeyedURL    = "https://v6.exchangerate-api.com/v6"
	defaultRatesPublicURL   = "https://open.er-api.com/v6/latest/USD"
	defaultRatesTTL         = 30 * time.Minute
	defaultRatesTimeout     = 5 * time.Second
	defaultMailEndpoint     = "https://api.resend.com/emails"
	defaultMailFrom         = "Arte Hecho a Mano <ventas@artehechoamano.com>"
	defaultMailTimeout      = 10 * time.Second
	defaultAuthLoginPath    = "/login"
	defaultAuthCookieName   = "sb-access-token"
	defaultRedisKeyPrefix   = "storefront:"
	defaultLogLevel         = "info"
	defaultFeaturedCapacity = 9
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Site     SiteConfig
	Rates    RatesConfig
	Mail     MailConfig
	Auth     AuthConfig
	Log      LogConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig points at the hosted Postgres instance backing the catalog.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig enables the shared exchange-rate cache. An empty Addr keeps the cache in memory.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool { return strings.TrimSpace(c.Addr) != "" }

// SiteConfig describes the two public domains and the storefront defaults.
type SiteConfig struct {
	SpanishHost      string
	SpanishOrigin    string
	EnglishOrigin    string
	RoutesFile       string
	FeaturedCapacity int
}

// RatesConfig configures the exchange-rate providers and cache lifetime.
type RatesConfig struct {
	APIKey    string
	KeyedURL  string
	PublicURL string
	TTL       time.Duration
	Timeout   time.Duration
}

// MailConfig configures the transactional mail provider.
type MailConfig struct {
	Endpoint   string
	APIKey     string
	From       string
	AdminEmail string
	Timeout    time.Duration
}

// Enabled reports whether mail can be relayed.
func (c MailConfig) Enabled() bool { return strings.TrimSpace(c.APIKey) != "" }

// AuthConfig configures verification of the hosted auth provider's session tokens.
type AuthConfig struct {
	JWTSecret   string
	CookieName  string
	LoginPath   string
	ProviderURL string
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables and explicit maps.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	port := stringWithDefault(lookup, "STOREFRONT_SERVER_PORT", "")
	if port == "" {
		// Cloud runtimes inject PORT.
		port = stringWithDefault(lookup, "PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     durationWithDefault(lookup, "STOREFRONT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "STOREFRONT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "STOREFRONT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "STOREFRONT_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Database: DatabaseConfig{
			URL:             stringWithDefault(lookup, "STOREFRONT_DATABASE_URL", ""),
			MaxOpenConns:    intWithDefault(lookup, "STOREFRONT_DATABASE_MAX_OPEN_CONNS", defaultDBMaxOpenConns),
			MaxIdleConns:    intWithDefault(lookup, "STOREFRONT_DATABASE_MAX_IDLE_CONNS", defaultDBMaxIdleConns),
			ConnMaxLifetime: durationWithDefault(lookup, "STOREFRONT_DATABASE_CONN_MAX_LIFETIME", defaultDBConnLifetime),
		},
		Redis: RedisConfig{
			Addr:      stringWithDefault(lookup, "STOREFRONT_REDIS_ADDR", ""),
			Password:  stringWithDefault(lookup, "STOREFRONT_REDIS_PASSWORD", ""),
			DB:        intWithDefault(lookup, "STOREFRONT_REDIS_DB", 0),
			KeyPrefix: stringWithDefault(lookup, "STOREFRONT_REDIS_KEY_PREFIX", defaultRedisKeyPrefix),
		},
		Site: SiteConfig{
			SpanishHost:      strings.ToLower(stringWithDefault(lookup, "STOREFRONT_SITE_SPANISH_HOST", defaultSpanishHost)),
			SpanishOrigin:    strings.TrimRight(stringWithDefault(lookup, "STOREFRONT_SITE_SPANISH_ORIGIN", defaultSpanishOrigin), "/"),
			EnglishOrigin:    strings.TrimRight(stringWithDefault(lookup, "STOREFRONT_SITE_ENGLISH_ORIGIN", defaultEnglishOrigin), "/"),
			RoutesFile:       stringWithDefault(lookup, "STOREFRONT_SITE_ROUTES_FILE", ""),
			FeaturedCapacity: intWithDefault(lookup, "STOREFRONT_SITE_FEATURED_CAPACITY", defaultFeaturedCapacity),
		},
		Rates: RatesConfig{
			APIKey:    stringWithDefault(lookup, "STOREFRONT_RATES_API_KEY", ""),
			KeyedURL:  strings.TrimRight(stringWithDefault(lookup, "STOREFRONT_RATES_KEYED_URL", defaultRatesKeyedURL), "/"),
			PublicURL: stringWithDefault(lookup, "STOREFRONT_RATES_PUBLIC_URL", defaultRatesPublicURL),
			TTL:       durationWithDefault(lookup, "STOREFRONT_RATES_TTL", defaultRatesTTL),
			Timeout:   durationWithDefault(lookup, "STOREFRONT_RATES_TIMEOUT", defaultRatesTimeout),
		},
		Mail: MailConfig{
			Endpoint:   stringWithDefault(lookup, "STOREFRONT_MAIL_ENDPOINT", defaultMailEndpoint),
			APIKey:     stringWithDefault(lookup, "STOREFRONT_MAIL_API_KEY", ""),
			From:       stringWithDefault(lookup, "STOREFRONT_MAIL_FROM", defaultMailFrom),
			AdminEmail: stringWithDefault(lookup, "STOREFRONT_MAIL_ADMIN_EMAIL", ""),
			Timeout:    durationWithDefault(lookup, "STOREFRONT_MAIL_TIMEOUT", defaultMailTimeout),
		},
		Auth: AuthConfig{
			JWTSecret:   stringWithDefault(lookup, "STOREFRONT_AUTH_JWT_SECRET", ""),
			CookieName:  stringWithDefault(lookup, "STOREFRONT_AUTH_COOKIE_NAME", defaultAuthCookieName),
			LoginPath:   stringWithDefault(lookup, "STOREFRONT_AUTH_LOGIN_PATH", defaultAuthLoginPath),
			ProviderURL: stringWithDefault(lookup, "STOREFRONT_AUTH_PROVIDER_URL", ""),
		},
		Log: LogConfig{
			Level: stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if strings.TrimSpace(cfg.Database.URL) == "" {
		missing = append(missing, "Database.URL")
	}
	if cfg.Site.SpanishHost == "" {
		missing = append(missing, "Site.SpanishHost")
	}
	if !isAbsoluteURL(cfg.Site.SpanishOrigin) {
		missing = append(missing, "Site.SpanishOrigin")
	}
	if !isAbsoluteURL(cfg.Site.EnglishOrigin) {
		missing = append(missing, "Site.EnglishOrigin")
	}
	if cfg.Rates.TTL <= 0 {
		missing = append(missing, "Rates.TTL")
	}
	if !isAbsoluteURL(cfg.Rates.PublicURL) {
		missing = append(missing, "Rates.PublicURL")
	}
	if cfg.Site.FeaturedCapacity <= 0 {
		missing = append(missing, "Site.FeaturedCapacity")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && u.Scheme != "" && u.Host != ""
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(parts[1]), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
