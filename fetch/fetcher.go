// Package fetch retrieves resources for the crawler through pluggable
// per-scheme fetchers and extracts the links they contain.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lukemcguire/linkcrawl/result"
)

// Request describes one retrieval.
type Request struct {
	URL     string        // Normalized absolute URL
	Recurse bool          // Retrieve the body and extract child links
	Timeout time.Duration // Deadline for a single attempt
}

// OutcomeKind discriminates the variants of an Outcome.
type OutcomeKind int

const (
	// OutcomeContent means the resource was retrieved.
	OutcomeContent OutcomeKind = iota
	// OutcomeRedirect means the resource points elsewhere (see Target).
	OutcomeRedirect
	// OutcomeFailure means the resource could not be retrieved (see Failure).
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeContent:
		return "content"
	case OutcomeRedirect:
		return "redirect"
	case OutcomeFailure:
		return "failure"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Link is a reference found in a document.
type Link struct {
	URL    string // The reference as written
	Base   string // Base URL the reference resolves against
	Line   int    // 1-based line of the containing tag, 0 if unknown
	Column int    // 1-based column of the containing tag, 0 if unknown
	Tag    string // Element name, e.g. "a"
	Attr   string // Attribute name, e.g. "href"
}

// Outcome is the result of one Fetch.
type Outcome struct {
	Kind        OutcomeKind
	StatusCode  int    // Protocol status code (0 if none)
	ContentType string // Media type without parameters
	Size        int64  // Bytes retrieved, or the announced length
	Links       []Link // Extracted references (Content only)
	Target      string // Redirect target (Redirect only)
	Failure     result.FailureKind
	Err         error
	Warnings    []string
}

// Content builds a successful Outcome.
func Content(statusCode int, contentType string, size int64, links []Link) Outcome {
	return Outcome{Kind: OutcomeContent, StatusCode: statusCode, ContentType: contentType, Size: size, Links: links}
}

// Redirect builds a redirect Outcome.
func Redirect(statusCode int, target string) Outcome {
	return Outcome{Kind: OutcomeRedirect, StatusCode: statusCode, Target: target}
}

// Fail builds a failed Outcome.
func Fail(kind result.FailureKind, err error) Outcome {
	if err == nil {
		err = errors.New(string(kind))
	}
	return Outcome{Kind: OutcomeFailure, Failure: kind, Err: err}
}

// WithStatus sets the protocol status code.
func (o Outcome) WithStatus(code int) Outcome {
	o.StatusCode = code
	return o
}

// WithWarning appends a warning message.
func (o Outcome) WithWarning(msg string) Outcome {
	o.Warnings = append(o.Warnings, msg)
	return o
}

// Message returns the failure message, or "" for non-failures.
func (o Outcome) Message() string {
	if o.Kind != OutcomeFailure || o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Fetcher retrieves resources of the schemes it supports. Fetch must honour
// ctx and req.Timeout and report a timeout failure instead of blocking
// indefinitely.
type Fetcher interface {
	Supports(scheme string) bool
	Fetch(ctx context.Context, req Request) Outcome
}

// Registry maps schemes to fetchers. When several fetchers support a scheme
// the most recently registered one is used.
type Registry struct {
	mu       sync.RWMutex
	fetchers []Fetcher
}

// NewRegistry creates a Registry holding fetchers, later ones taking precedence.
func NewRegistry(fetchers ...Fetcher) *Registry {
	r := &Registry{}
	for _, f := range fetchers {
		r.Register(f)
	}
	return r
}

// Register adds f, overriding earlier fetchers for the schemes it supports.
func (r *Registry) Register(f Fetcher) {
	if f == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers = append(r.fetchers, f)
}

// For returns the fetcher responsible for scheme, or nil.
func (r *Registry) For(scheme string) Fetcher {
	scheme = strings.ToLower(scheme)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.fetchers) - 1; i >= 0; i-- {
		if r.fetchers[i].Supports(scheme) {
			return r.fetchers[i]
		}
	}
	return nil
}

// Fetch dispatches req to the fetcher for scheme.
func (r *Registry) Fetch(ctx context.Context, scheme string, req Request) Outcome {
	f := r.For(scheme)
	if f == nil {
		return Fail(result.KindUnsupportedScheme, fmt.Errorf("unsupported URL scheme %q", scheme))
	}
	if err := ctx.Err(); err != nil {
		return Fail(result.KindCancelled, err)
	}
	return f.Fetch(ctx, req)
}
