// Package config loads meetgate's runtime configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables. Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultHTTPAddr         = ":8080"
	DefaultMetricsAddr      = ":9090"
	DefaultShutdownTimeout  = 30 * time.Second
	DefaultLDAPPort         = "389"
	DefaultUserAttribute    = "cn"
	DefaultTimezone         = "Asia/Kolkata"
	DefaultSessionTTL       = 8 * time.Hour
	DefaultDirectoryTimeout = 10 * time.Second
	DefaultWebexTimeout     = 30 * time.Second
	DefaultLoginRate        = 1.0
	DefaultLoginBurst       = 5
)

// MinSessionSecretLength is the shortest JWT_SECRET accepted.
const MinSessionSecretLength = 16

// Config is the complete server configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Directory DirectoryConfig `yaml:"directory"`
	Webex     WebexConfig     `yaml:"webex"`
	Session   SessionConfig   `yaml:"session"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`

	// StaticDir, if set, is served as a single-page front end
	StaticDir string `yaml:"staticDir"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// TrustProxy makes the server honour X-Forwarded-For and X-Real-IP.
	// Only enable behind a proxy that overwrites these headers.
	TrustProxy bool `yaml:"trustProxy"`
}

// DirectoryConfig configures the LDAP directory.
type DirectoryConfig struct {
	URL           string        `yaml:"url"`
	BaseDNs       []string      `yaml:"baseDNs"`
	BindDN        string        `yaml:"bindDN"`
	BindPassword  string        `yaml:"bindPassword"`
	UserAttribute string        `yaml:"userAttribute"`
	Timeout       time.Duration `yaml:"timeout"`
}

// WebexConfig configures the Webex integration.
type WebexConfig struct {
	ClientID     string `yaml:"clientID"`
	ClientSecret string `yaml:"clientSecret"`
	RefreshToken string `yaml:"refreshToken"`

	// AccessToken is an optional pre-issued token served until it is assumed expired
	AccessToken string `yaml:"accessToken"`

	TokenURL  string        `yaml:"tokenURL"`
	BaseURL   string        `yaml:"baseURL"`
	HostEmail string        `yaml:"hostEmail"`
	Timezone  string        `yaml:"timezone"`
	Timeout   time.Duration `yaml:"timeout"`
}

// SessionConfig configures session tokens.
type SessionConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
	Issuer string        `yaml:"issuer"`
}

// MetricsConfig configures the dedicated metrics listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// CORSConfig configures cross-origin access to the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// RateLimitConfig configures the per-client login limiter.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`

	// Rate is the sustained number of login attempts per second
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            DefaultHTTPAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Directory: DirectoryConfig{
			UserAttribute: DefaultUserAttribute,
			Timeout:       DefaultDirectoryTimeout,
		},
		Webex: WebexConfig{
			Timezone: DefaultTimezone,
			Timeout:  DefaultWebexTimeout,
		},
		Session: SessionConfig{
			TTL: DefaultSessionTTL,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    DefaultMetricsAddr,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Rate:    DefaultLoginRate,
			Burst:   DefaultLoginBurst,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// lookupFunc matches os.LookupEnv.
type lookupFunc func(key string) (string, bool)

// applyEnv overrides c with any environment variables that are set.
func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if port, ok := lookup("PORT"); ok && port != "" {
		c.HTTP.Addr = ":" + port
	}
	str("HTTP_ADDR", &c.HTTP.Addr)
	if v, ok := lookup("TRUST_PROXY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid TRUST_PROXY value %q: %w", v, err)
		}
		c.HTTP.TrustProxy = b
	}

	if server, ok := lookup("LDAP_SERVER"); ok && server != "" {
		port := DefaultLDAPPort
		str("LDAP_PORT", &port)
		c.Directory.URL = "ldap://" + net.JoinHostPort(server, port)
	}
	str("LDAP_URL", &c.Directory.URL)
	if v, ok := lookup("LDAP_BASE_DNS"); ok && v != "" {
		c.Directory.BaseDNs = ParseList(v, ";")
	} else {
		var bases []string
		for _, key := range []string{"LDAP_BASE_DN_1", "LDAP_BASE_DN_2"} {
			if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
				bases = append(bases, strings.TrimSpace(v))
			}
		}
		if len(bases) > 0 {
			c.Directory.BaseDNs = bases
		}
	}
	str("LDAP_BIND_DN", &c.Directory.BindDN)
	str("LDAP_BIND_PASSWORD", &c.Directory.BindPassword)
	str("LDAP_USER_ATTRIBUTE", &c.Directory.UserAttribute)

	str("JWT_SECRET", &c.Session.Secret)

	str("WEBEX_CLIENT_ID", &c.Webex.ClientID)
	str("WEBEX_CLIENT_SECRET", &c.Webex.ClientSecret)
	str("WEBEX_REFRESH_TOKEN", &c.Webex.RefreshToken)
	str("WEBEX_ACCESS_TOKEN", &c.Webex.AccessToken)
	str("WEBEX_TOKEN_URL", &c.Webex.TokenURL)
	str("WEBEX_BASE_URL", &c.Webex.BaseURL)
	str("FIXED_HOST_EMAIL", &c.Webex.HostEmail)
	str("WEBEX_TIMEZONE", &c.Webex.Timezone)

	str("STATIC_DIR", &c.StaticDir)
	if v, ok := lookup("CORS_ALLOWED_ORIGINS"); ok && v != "" {
		c.CORS.AllowedOrigins = ParseList(v, ",")
	}

	if v, ok := lookup("METRICS_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid METRICS_ENABLED value %q: %w", v, err)
		}
		c.Metrics.Enabled = b
	}
	str("METRICS_ADDR", &c.Metrics.Addr)

	return nil
}

// Validate reports every missing or inconsistent setting.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http address is required"))
	}
	if c.Directory.URL == "" {
		errs = append(errs, errors.New("directory URL is required (LDAP_URL or LDAP_SERVER)"))
	}
	if len(c.Directory.BaseDNs) == 0 {
		errs = append(errs, errors.New("at least one directory base DN is required (LDAP_BASE_DN_1)"))
	}
	switch {
	case c.Session.Secret == "":
		errs = append(errs, errors.New("session secret is required (JWT_SECRET)"))
	case len(c.Session.Secret) < MinSessionSecretLength:
		errs = append(errs, fmt.Errorf("session secret must be at least %d bytes (JWT_SECRET)", MinSessionSecretLength))
	}
	if c.Webex.ClientID == "" || c.Webex.ClientSecret == "" || c.Webex.RefreshToken == "" {
		errs = append(errs, errors.New("webex client ID, client secret and refresh token are required"))
	}
	if c.Webex.HostEmail == "" {
		errs = append(errs, errors.New("webex host email is required (FIXED_HOST_EMAIL)"))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics address is required when metrics are enabled"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.Rate <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("login rate limit rate and burst must be positive"))
	}
	return errors.Join(errs...)
}

// ParseList splits s on sep, trimming whitespace and dropping empty items.
// It returns nil for an empty string.
func ParseList(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
