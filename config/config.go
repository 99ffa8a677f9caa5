// Package config defines the immutable configuration snapshot consumed by a
// crawl run.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/lukemcguire/linkcrawl/urlutil"
)

// RecursionUnlimited disables the recursion depth limit.
const RecursionUnlimited = -1

// Visited-set backends.
const (
	VisitedMemory = "memory"
	VisitedBloom  = "bloom"
)

// Config holds crawl configuration.
type Config struct {
	RecursionLevel int      // Maximum link depth below the root, or RecursionUnlimited
	Threads        int      // Number of concurrent workers (>= 1)
	InternPatterns []string // Scope rules, see urlutil.ParsePattern; empty means the root's host

	Timeout     time.Duration // Per-request timeout
	Proxy       string        // Proxy URL; empty uses the environment
	UserAgent   string
	MaxBodySize int64 // Bytes read from a response body

	RateLimit    int           // Requests per second; 0 disables limiting
	AdaptiveRate bool          // Adjust RateLimit from observed response times
	TargetRTT    time.Duration // Response time the adaptive limiter aims for

	Retries        int           // Retries for transient failures (2 = 3 total attempts)
	RetryBaseDelay time.Duration // Initial backoff delay
	RetryMaxDelay  time.Duration // Maximum backoff cap

	RespectRobots bool // Honour robots.txt for http(s) URLs
	CheckMX       bool // Look up MX records for mailto: URLs

	VisitedStore    string // VisitedMemory or VisitedBloom
	VisitedFile     string // Bloom filter file kept across runs; empty uses a temp file
	VisitedCapacity uint   // Expected number of URLs for the bloom filter

	MemoryLimitMB int64 // Soft memory limit; 0 disables throttling

	Verbose bool // Log every result, not only failures
	Debug   bool
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		RecursionLevel:  RecursionUnlimited,
		Threads:         10,
		Timeout:         10 * time.Second,
		UserAgent:       "linkcrawl/1.0 (+https://github.com/lukemcguire/linkcrawl)",
		MaxBodySize:     10 * 1024 * 1024,
		RateLimit:       10,
		TargetRTT:       500 * time.Millisecond,
		Retries:         2,
		RetryBaseDelay:  time.Second,
		RetryMaxDelay:   30 * time.Second,
		RespectRobots:   true,
		VisitedStore:    VisitedMemory,
		VisitedCapacity: 100000,
	}
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.RecursionLevel < RecursionUnlimited {
		errs = append(errs, fmt.Errorf("recursion level %d: must be >= 0 or unlimited", c.RecursionLevel))
	}
	if c.Threads < 1 {
		errs = append(errs, fmt.Errorf("threads %d: must be >= 1", c.Threads))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout %s: must be positive", c.Timeout))
	}
	if c.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries %d: must be >= 0", c.Retries))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate limit %d: must be >= 0", c.RateLimit))
	}
	if c.Proxy != "" {
		if u, err := url.Parse(c.Proxy); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("proxy %q: not an absolute URL", c.Proxy))
		}
	}
	switch c.VisitedStore {
	case "", VisitedMemory, VisitedBloom:
	default:
		errs = append(errs, fmt.Errorf("visited store %q: want %q or %q", c.VisitedStore, VisitedMemory, VisitedBloom))
	}
	if _, err := c.Patterns(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Patterns compiles InternPatterns.
func (c Config) Patterns() ([]urlutil.Pattern, error) {
	patterns := make([]urlutil.Pattern, 0, len(c.InternPatterns))
	for _, raw := range c.InternPatterns {
		p, err := urlutil.ParsePattern(raw)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// Unlimited reports whether recursion depth is unbounded.
func (c Config) Unlimited() bool {
	return c.RecursionLevel == RecursionUnlimited
}

// Clone returns a deep copy. A run works on its own clone, so later changes
// to the caller's Config never reach it.
func (c Config) Clone() Config {
	out := c
	if c.InternPatterns != nil {
		out.InternPatterns = append([]string(nil), c.InternPatterns...)
	}
	return out
}
