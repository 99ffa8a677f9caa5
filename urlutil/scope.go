package urlutil

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// Pattern decides whether a normalized URL is intern.
type Pattern interface {
	Match(normalizedURL string) bool
	String() string
}

// Pattern prefixes accepted by ParsePattern.
const (
	regexPrefix  = "re:"
	hostPrefix   = "host:"
	domainPrefix = "domain:"
)

// RegexPattern matches URLs against a regular expression.
type RegexPattern struct {
	re *regexp.Regexp
}

// NewRegexPattern compiles expr into a RegexPattern.
func NewRegexPattern(expr string) (RegexPattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return RegexPattern{}, fmt.Errorf("compile intern pattern %q: %w", expr, err)
	}
	return RegexPattern{re: re}, nil
}

// Match implements Pattern.
func (p RegexPattern) Match(u string) bool { return p.re.MatchString(u) }

func (p RegexPattern) String() string { return regexPrefix + p.re.String() }

// HostPattern matches URLs on a host or any of its subdomains.
type HostPattern struct {
	Host string
}

// Match implements Pattern.
func (p HostPattern) Match(u string) bool { return IsSameDomain(u, p.Host) }

func (p HostPattern) String() string { return hostPrefix + p.Host }

// DomainPattern matches URLs sharing a registrable domain (eTLD+1), so
// "domain:www.example.co.uk" accepts shop.example.co.uk.
type DomainPattern struct {
	domain string
}

// NewDomainPattern derives the registrable domain of host.
func NewDomainPattern(host string) (DomainPattern, error) {
	domain, err := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(host))
	if err != nil {
		return DomainPattern{}, fmt.Errorf("registrable domain of %q: %w", host, err)
	}
	return DomainPattern{domain: domain}, nil
}

// Match implements Pattern.
func (p DomainPattern) Match(u string) bool {
	host := Hostname(u)
	if host == "" {
		return false
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return false
	}
	return domain == p.domain
}

func (p DomainPattern) String() string { return domainPrefix + p.domain }

// PrefixPattern matches URLs starting with a literal prefix.
type PrefixPattern struct {
	Prefix string
}

// Match implements Pattern.
func (p PrefixPattern) Match(u string) bool { return strings.HasPrefix(u, p.Prefix) }

func (p PrefixPattern) String() string { return p.Prefix }

// ParsePattern builds a Pattern from its textual form:
//
//	re:<regexp>     regular expression over the normalized URL
//	host:<host>     host or any subdomain
//	domain:<host>   same registrable domain
//	<prefix>        literal URL prefix
func ParsePattern(raw string) (Pattern, error) {
	switch {
	case raw == "":
		return nil, fmt.Errorf("empty intern pattern")
	case strings.HasPrefix(raw, regexPrefix):
		return NewRegexPattern(strings.TrimPrefix(raw, regexPrefix))
	case strings.HasPrefix(raw, hostPrefix):
		host := strings.TrimPrefix(raw, hostPrefix)
		if host == "" {
			return nil, fmt.Errorf("intern pattern %q: empty host", raw)
		}
		return HostPattern{Host: strings.ToLower(host)}, nil
	case strings.HasPrefix(raw, domainPrefix):
		return NewDomainPattern(strings.TrimPrefix(raw, domainPrefix))
	default:
		return PrefixPattern{Prefix: raw}, nil
	}
}

// RootPattern returns the default intern pattern for a crawl root: any http
// or https URL on the root's host and port.
func RootPattern(root URL) Pattern {
	expr := `^https?://` + regexp.QuoteMeta(root.Host) + `(?:[/?#]|$)`
	return RegexPattern{re: regexp.MustCompile(expr)}
}

// IsIntern reports whether u matches at least one of patterns.
func IsIntern(u string, patterns []Pattern) bool {
	for _, p := range patterns {
		if p.Match(u) {
			return true
		}
	}
	return false
}

// Scope is a concurrency-safe set of intern patterns. The zero value has
// nothing in scope.
type Scope struct {
	mu       sync.RWMutex
	patterns []Pattern
}

// NewScope creates a Scope holding patterns.
func NewScope(patterns ...Pattern) *Scope {
	s := &Scope{}
	for _, p := range patterns {
		s.Add(p)
	}
	return s
}

// Add widens the scope by one pattern.
func (s *Scope) Add(p Pattern) {
	if p == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = append(s.patterns, p)
}

// Clear removes all patterns, leaving nothing in scope.
func (s *Scope) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = nil
}

// IsIntern reports whether u is in scope.
func (s *Scope) IsIntern(u string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return IsIntern(u, s.patterns)
}

// Len returns the number of patterns.
func (s *Scope) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patterns)
}

// Patterns returns a copy of the configured patterns.
func (s *Scope) Patterns() []Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Pattern, len(s.patterns))
	copy(out, s.patterns)
	return out
}
