package urlutil

import (
	"net/url"
	"strings"
)

// Hostname returns the lower-cased host of an absolute URL without its port,
// or "" when u has no host.
func Hostname(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// IsSameDomain reports whether targetURL is on baseHost or one of its
// subdomains (blog.example.com matches example.com).
func IsSameDomain(targetURL string, baseHost string) bool {
	host := Hostname(targetURL)
	baseHost = strings.ToLower(baseHost)
	if host == "" || baseHost == "" {
		return false
	}
	return host == baseHost || strings.HasSuffix(host, "."+baseHost)
}

// IsHTTPScheme reports whether rawURL is an http or https URL.
func IsHTTPScheme(rawURL string) bool {
	scheme, _, found := strings.Cut(rawURL, ":")
	if !found {
		return false
	}
	switch strings.ToLower(scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}
