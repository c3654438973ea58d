package providers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnsupportedProvider indicates the request named a provider that has no
// configuration.
var ErrUnsupportedProvider = errors.New("unsupported OAuth provider")

// CredentialsLookup resolves credential identifiers (such as
// "providers.google.client_id") from process configuration.
type CredentialsLookup interface {
	Credential(key string) string
}

// CredentialsFunc adapts a function to CredentialsLookup.
type CredentialsFunc func(key string) string

func (f CredentialsFunc) Credential(key string) string { return f(key) }

// ProviderConfig is the static description of one OAuth provider. It holds
// credential identifiers, never the credentials themselves.
type ProviderConfig struct {
	// Name is the canonical provider tag used in requests.
	Name string
	// DisplayName is used in logs.
	DisplayName string
	// TokenURL is the provider's token endpoint.
	TokenURL string
	// ClientIDKey and ClientSecretKey are looked up via CredentialsLookup.
	ClientIDKey     string
	ClientSecretKey string
	// Aliases are extra request tags that resolve to this provider.
	Aliases []string
}

// Registry maps lowercase provider tags to their configuration. It is built
// once at startup and only read afterwards.
type Registry struct {
	byTag map[string]ProviderConfig
}

// NewRegistry indexes configs by name and alias. A later config replaces an
// earlier one with the same tag.
func NewRegistry(configs ...ProviderConfig) *Registry {
	r := &Registry{byTag: make(map[string]ProviderConfig, len(configs))}
	for _, cfg := range configs {
		r.byTag[strings.ToLower(cfg.Name)] = cfg
		for _, alias := range cfg.Aliases {
			r.byTag[strings.ToLower(alias)] = cfg
		}
	}
	return r
}

// DefaultRegistry wires the providers supported in production.
func DefaultRegistry() *Registry {
	return NewRegistry(GoogleConfig(), MicrosoftConfig())
}

// Lookup resolves a request tag case-insensitively.
func (r *Registry) Lookup(tag string) (ProviderConfig, error) {
	cfg, ok := r.byTag[strings.ToLower(tag)]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("%w: %s", ErrUnsupportedProvider, tag)
	}
	return cfg, nil
}

// Tags lists every accepted tag, sorted.
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.byTag))
	for tag := range r.byTag {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
