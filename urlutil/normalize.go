// Package urlutil normalizes URLs into de-duplication keys and decides which
// URLs are in scope for recursive crawling.
package urlutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nlnwa/whatwg-url/canonicalizer"
	whatwg "github.com/nlnwa/whatwg-url/url"
)

var parser = canonicalizer.New(
	whatwg.WithPercentEncodeSinglePercentSign(),
	canonicalizer.WithRemoveFragment(),
)

// InvalidURLError reports a reference that could not be normalized.
type InvalidURLError struct {
	Raw  string // The reference as found
	Base string // The base it was resolved against, if any
	Err  error  // Underlying parse failure
}

func (e *InvalidURLError) Error() string {
	if e.Base != "" {
		return fmt.Sprintf("invalid URL %q (base %q): %v", e.Raw, e.Base, e.Err)
	}
	return fmt.Sprintf("invalid URL %q: %v", e.Raw, e.Err)
}

func (e *InvalidURLError) Unwrap() error { return e.Err }

// IsInvalidURL reports whether err is, or wraps, an *InvalidURLError.
func IsInvalidURL(err error) bool {
	var invalid *InvalidURLError
	return errors.As(err, &invalid)
}

// URL is a normalized, checkable resource location.
type URL struct {
	Raw        string // The reference as found
	Normalized string // Canonical form used as the de-duplication key
	Scheme     string // Lower-case scheme without the trailing colon
	Host       string // Host including any non-default port
	Hostname   string // Host without port
	Path       string // Path component
}

// String returns the normalized form.
func (u URL) String() string {
	return u.Normalized
}

// Normalize resolves raw against base (which may be empty) and returns the
// canonical form of the result.
// Normalization follows the WHATWG URL standard:
// - Lowercasing the scheme and host, IDNA-encoding non-ASCII hosts
// - Stripping default ports
// - Collapsing "." and ".." path segments
// - Percent-encoding consistently: escapes of unreserved characters are
//   decoded and the remaining escapes use upper-case hex
// - Stripping fragments (#section)
//
// Normalizing an already normalized URL returns it unchanged.
func Normalize(raw, base string) (URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return URL{}, &InvalidURLError{Raw: raw, Base: base, Err: errors.New("empty URL")}
	}

	var (
		parsed *whatwg.Url
		err    error
	)
	if base == "" {
		parsed, err = parser.Parse(trimmed)
	} else {
		parsed, err = parser.ParseRef(base, trimmed)
	}
	if err != nil {
		return URL{}, &InvalidURLError{Raw: raw, Base: base, Err: err}
	}
	canonicalizeEscapes(parsed)

	return URL{
		Raw:        raw,
		Normalized: parsed.Href(true),
		Scheme:     strings.TrimSuffix(parsed.Protocol(), ":"),
		Host:       parsed.Host(),
		Hostname:   parsed.Hostname(),
		Path:       parsed.Pathname(),
	}, nil
}

// MustNormalize is like Normalize but panics on error. Intended for
// constants in tests and examples.
func MustNormalize(raw string) URL {
	u, err := Normalize(raw, "")
	if err != nil {
		panic(err)
	}
	return u
}

// canonicalizeEscapes rewrites the path and query of u so that equivalent
// percent-escapes compare equal: %7E and %7e become "~", %2f becomes %2F.
func canonicalizeEscapes(u *whatwg.Url) {
	if !u.OpaquePath() {
		if path := u.Pathname(); strings.Contains(path, "%") {
			if canon := canonicalEscapes(path); canon != path {
				u.SetPathname(canon)
			}
		}
	}
	if search := u.Search(); strings.Contains(search, "%") {
		if canon := canonicalEscapes(search); canon != search {
			u.SetSearch(canon)
		}
	}
}

// canonicalEscapes decodes escapes of RFC 3986 unreserved characters and
// upper-cases the hex digits of every other escape. Malformed escapes are
// left as they are.
func canonicalEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '%' || i+2 >= len(s) || !isHex(s[i+1]) || !isHex(s[i+2]) {
			b.WriteByte(s[i])
			continue
		}
		c := unhex(s[i+1])<<4 | unhex(s[i+2])
		if isUnreserved(c) {
			b.WriteByte(c)
		} else {
			b.WriteByte('%')
			b.WriteByte(upperHex(s[i+1]))
			b.WriteByte(upperHex(s[i+2]))
		}
		i += 2
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return c == '-' || c == '.' || c == '_' || c == '~'
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func upperHex(c byte) byte {
	if 'a' <= c && c <= 'f' {
		return c - 'a' + 'A'
	}
	return c
}
