package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version information - set by GoReleaser during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// GetVersionInfo returns a formatted version string
func GetVersionInfo() string {
	return fmt.Sprintf("oauth-proxy version %s, commit %s, built at %s", version, commit, date)
}

const (
	envPrefix = "OAUTH_PROXY"

	defaultPort = 8787

	// DefaultHTTPTimeout bounds each outbound call.
	DefaultHTTPTimeout = 30 * time.Second
	// DefaultReadTimeout is the server read timeout.
	DefaultReadTimeout = 10 * time.Second
	// DefaultWriteTimeout leaves room for both sequential outbound calls.
	DefaultWriteTimeout = 2*DefaultHTTPTimeout + 5*time.Second
)

// Tracing exporters
const (
	TracingExporterNone   = "none"
	TracingExporterStdout = "stdout"
)

type Config struct {
	Environment         string                    `mapstructure:"environment" yaml:"environment"`
	Server              ServerConfig              `mapstructure:"server" yaml:"server"`
	Logging             LoggingConfig             `mapstructure:"logging" yaml:"logging"`
	AllowedRedirectURIs string                    `mapstructure:"allowed_redirect_uris" yaml:"allowed_redirect_uris"`
	BackendURL          string                    `mapstructure:"backend_url" yaml:"backend_url"`
	Providers           map[string]ProviderSecret `mapstructure:"providers" yaml:"providers"`
	HTTP                HTTPClientConfig          `mapstructure:"http" yaml:"http"`
	RateLimit           RateLimitConfig           `mapstructure:"rate_limit" yaml:"rate_limit"`
	Tracing             TracingConfig             `mapstructure:"tracing" yaml:"tracing"`
}

type ServerConfig struct {
	Port         int      `mapstructure:"port" yaml:"port"`
	Host         string   `mapstructure:"host" yaml:"host"`
	ReadTimeout  string   `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout string   `mapstructure:"write_timeout" yaml:"write_timeout"`
	PathPrefixes []string `mapstructure:"path_prefixes" yaml:"path_prefixes"`
}

type LoggingConfig struct {
	Level             string `mapstructure:"level" yaml:"level"`
	Format            string `mapstructure:"format" yaml:"format"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace" yaml:"disable_stacktrace"`
	OutputPath        string `mapstructure:"output_path" yaml:"output_path"`
}

// ProviderSecret is the client credential pair registered with one OAuth provider.
type ProviderSecret struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
}

type HTTPClientConfig struct {
	Timeout string `mapstructure:"timeout" yaml:"timeout"`
}

// RateLimitConfig limits POST /oauth/token per client IP. Zero disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// TracingConfig selects the OpenTelemetry span exporter.
type TracingConfig struct {
	Exporter    string `mapstructure:"exporter" yaml:"exporter"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
}

// InitFlags initializes command line flags (without parsing)
func InitFlags(flags *pflag.FlagSet) {
	flags.String("environment", "", "Environment label used for log and health tagging")
	flags.Int("server.port", defaultPort, "Port to listen on")
	flags.String("server.host", "", "Host to bind to")
	flags.String("backend-url", "", "Base URL of the user profile backend")
	flags.String("allowed-redirect-uris", "", "Comma-separated redirect URI allowlist (supports * wildcards)")
	flags.String("logging.level", "info", "Log level (debug|info|warn|error)")
	flags.String("logging.format", "console", "Log format (console|json)")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("allowed_redirect_uris", "")
	v.SetDefault("backend_url", "")
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", defaultPort)
	v.SetDefault("server.path_prefixes", []string{})
	v.SetDefault("logging.output_path", "")
	v.SetDefault("logging.disable_stacktrace", false)
	v.SetDefault("rate_limit.requests_per_second", 0)
	v.SetDefault("server.read_timeout", DefaultReadTimeout.String())
	v.SetDefault("server.write_timeout", DefaultWriteTimeout.String())
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("http.timeout", DefaultHTTPTimeout.String())
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("tracing.exporter", TracingExporterNone)
	v.SetDefault("tracing.service_name", "oauth-proxy")

	// Registered so AutomaticEnv can resolve the nested provider keys.
	for _, name := range []string{"google", "microsoft"} {
		v.SetDefault("providers."+name+".client_id", "")
		v.SetDefault("providers."+name+".client_secret", "")
	}
}

// Load reads configuration from flags, environment and optional YAML files.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, err
		}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/oauth-proxy")

	if err := v.ReadInConfig(); err != nil {
		// The proxy is usually configured from the environment alone.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if _, err := os.Stat("/config/config.yaml"); err == nil {
		v.SetConfigFile("/config/config.yaml")
		if err := v.MergeInConfig(); err != nil {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Flag names use dashes, config keys use underscores.
	if uris := v.GetString("allowed-redirect-uris"); uris != "" {
		config.AllowedRedirectURIs = uris
	}
	if backendURL := v.GetString("backend-url"); backendURL != "" {
		config.BackendURL = backendURL
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the settings the proxy cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BackendURL) == "" {
		return fmt.Errorf("backend_url is required, please adjust the config or set %s_BACKEND_URL", envPrefix)
	}
	if strings.TrimSpace(c.AllowedRedirectURIs) == "" {
		return fmt.Errorf("allowed_redirect_uris is required, please adjust the config or set %s_ALLOWED_REDIRECT_URIS", envPrefix)
	}
	for name, value := range map[string]string{
		"server.read_timeout":  c.Server.ReadTimeout,
		"server.write_timeout": c.Server.WriteTimeout,
		"http.timeout":         c.HTTP.Timeout,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
	}
	// The exchange and the profile lookup run back to back.
	httpTimeout := Duration(c.HTTP.Timeout, DefaultHTTPTimeout)
	writeTimeout := Duration(c.Server.WriteTimeout, DefaultWriteTimeout)
	if writeTimeout <= 2*httpTimeout {
		return fmt.Errorf("server.write_timeout %s must exceed twice http.timeout %s", writeTimeout, httpTimeout)
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit.requests_per_second must not be negative")
	}
	switch c.Tracing.Exporter {
	case "", TracingExporterNone, TracingExporterStdout:
	default:
		return fmt.Errorf("unsupported tracing.exporter %q (want %s or %s)", c.Tracing.Exporter, TracingExporterNone, TracingExporterStdout)
	}
	return nil
}

// Credential resolves a provider credential by its config key, e.g.
// "providers.google.client_id". Unknown keys resolve to "".
func (c *Config) Credential(key string) string {
	parts := strings.Split(key, ".")
	if len(parts) != 3 || parts[0] != "providers" {
		return ""
	}
	secret, ok := c.Providers[parts[1]]
	if !ok {
		return ""
	}
	switch parts[2] {
	case "client_id":
		return secret.ClientID
	case "client_secret":
		return secret.ClientSecret
	}
	return ""
}

// Duration parses value, falling back to def when empty or invalid.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// Redacted returns a copy safe to print: client secrets are masked.
func (c *Config) Redacted() Config {
	out := *c
	out.Providers = make(map[string]ProviderSecret, len(c.Providers))
	for name, secret := range c.Providers {
		if secret.ClientSecret != "" {
			secret.ClientSecret = "********"
		}
		out.Providers[name] = secret
	}
	return out
}
