// Package matcher compiles allowlist patterns into anchored matchers.
//
// A pattern is literal text in which every '*' matches any run of
// characters, including none. The whole input must match the whole pattern.
package matcher

import (
	"regexp"
	"strings"
	"sync"
)

// Matcher reports whether a URI is covered by a single pattern.
type Matcher interface {
	Match(uri string) bool
}

type regexpMatcher struct {
	re *regexp.Regexp
}

func (m regexpMatcher) Match(uri string) bool {
	return m.re.MatchString(uri)
}

// denyAll stands in for a pattern that failed to compile.
type denyAll struct{}

func (denyAll) Match(string) bool { return false }

// Compile escapes every regular expression metacharacter in pattern except
// '*', which becomes ".*", and anchors the result at both ends.
func Compile(pattern string) (Matcher, error) {
	quoted := regexp.QuoteMeta(pattern)
	expr := "(?s)^" + strings.ReplaceAll(quoted, `\*`, ".*") + "$"
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return regexpMatcher{re: re}, nil
}

// Cache holds compiled matchers keyed by the exact pattern text. Entries are
// never evicted; allowlists are small and fixed at deploy time.
type Cache struct {
	entries sync.Map // pattern -> Matcher
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Get returns the compiled matcher for pattern, compiling it on first use.
// A pattern that does not compile yields a matcher that never matches.
func (c *Cache) Get(pattern string) Matcher {
	if m, ok := c.entries.Load(pattern); ok {
		return m.(Matcher)
	}
	var m Matcher
	compiled, err := Compile(pattern)
	if err != nil {
		m = denyAll{}
	} else {
		m = compiled
	}
	// Concurrent inserts for the same key store equivalent matchers.
	actual, _ := c.entries.LoadOrStore(pattern, m)
	return actual.(Matcher)
}

// Match reports whether uri matches pattern.
func (c *Cache) Match(uri, pattern string) bool {
	return c.Get(pattern).Match(uri)
}

// Len reports the number of cached patterns.
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
