// Package validator decides whether redirect URIs and request origins are
// covered by the configured allowlist.
package validator

import (
	"net/url"
	"strings"

	"github.com/brizzai/oauth-proxy/internal/auth/matcher"
)

// wildcardPlaceholder replaces '*' while a pattern goes through url.Parse,
// which rejects '*' in the host.
const wildcardPlaceholder = "wildcard-placeholder-7f3a"

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Validator owns the matcher cache shared by every request.
type Validator struct {
	cache *matcher.Cache
}

// New creates a Validator backed by cache. A nil cache gets a fresh one.
func New(cache *matcher.Cache) *Validator {
	if cache == nil {
		cache = matcher.NewCache()
	}
	return &Validator{cache: cache}
}

// ParseAllowlist splits a comma separated allowlist into trimmed, non-empty
// patterns.
func ParseAllowlist(csv string) []string {
	parts := strings.Split(csv, ",")
	patterns := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

// ValidateRedirectURI reports whether uri matches at least one allowlist
// pattern in full. An empty uri is never valid.
func (v *Validator) ValidateRedirectURI(uri, allowlistCSV string) bool {
	if uri == "" {
		return false
	}
	for _, pattern := range ParseAllowlist(allowlistCSV) {
		if v.cache.Match(uri, pattern) {
			return true
		}
	}
	return false
}

// IsAllowedOrigin reports whether origin matches the origin part of any
// allowlist pattern. Patterns that do not parse as URLs are skipped.
func (v *Validator) IsAllowedOrigin(origin, allowlistCSV string) bool {
	if origin == "" {
		return false
	}
	for _, pattern := range ParseAllowlist(allowlistCSV) {
		reduced, ok := OriginPattern(pattern)
		if !ok {
			continue
		}
		if v.cache.Match(origin, reduced) {
			return true
		}
	}
	return false
}

// OriginPattern reduces a URI pattern to scheme://host[:port], keeping any
// wildcards. Scheme and host are lowercased and a default port is dropped,
// the way browsers serialise the Origin header.
func OriginPattern(pattern string) (string, bool) {
	u, err := url.Parse(strings.ReplaceAll(pattern, "*", wildcardPlaceholder))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port := u.Port(); port != "" && port != defaultPorts[scheme] {
		host += ":" + port
	}

	origin := scheme + "://" + host
	return strings.ReplaceAll(origin, wildcardPlaceholder, "*"), true
}
