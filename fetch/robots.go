package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"

	"github.com/lukemcguire/linkcrawl/urlutil"
)

// maxRobotsSize caps how much of a robots.txt file is read.
const maxRobotsSize = 512 << 10

// robotsEntry is a parsed robots.txt. A nil data field allows everything.
type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// RobotsChecker fetches and caches robots.txt rules per origin. Concurrent
// lookups for the same origin share a single fetch.
type RobotsChecker struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]robotsEntry
}

// NewRobotsChecker creates a RobotsChecker that matches rules for userAgent.
func NewRobotsChecker(client *http.Client, userAgent string) *RobotsChecker {
	return &RobotsChecker{
		client:    client,
		userAgent: userAgent,
		ttl:       time.Hour,
		cache:     make(map[string]robotsEntry),
	}
}

// Allowed reports whether u may be crawled. Any failure to obtain or parse
// robots.txt allows the URL; the error is returned for logging.
func (r *RobotsChecker) Allowed(ctx context.Context, u *url.URL) (bool, error) {
	if u.Host == "" || !urlutil.IsHTTPScheme(u.String()) {
		return true, nil
	}
	origin := u.Scheme + "://" + u.Host

	entry, ok := r.lookup(origin)
	if !ok {
		v, err, _ := r.group.Do(origin, func() (any, error) {
			e, err := r.fetch(ctx, origin)
			r.store(origin, e)
			return e, err
		})
		entry = v.(robotsEntry)
		if err != nil {
			return true, err
		}
	}

	if entry.data == nil {
		return true, nil
	}
	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return entry.data.TestAgent(path, r.userAgent), nil
}

func (r *RobotsChecker) lookup(origin string) (robotsEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.cache[origin]
	if !ok || time.Since(e.fetchedAt) >= r.ttl {
		return robotsEntry{}, false
	}
	return e, true
}

func (r *RobotsChecker) store(origin string, e robotsEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[origin] = e
}

// fetch always returns a usable entry; on error it is the allow-all entry.
func (r *RobotsChecker) fetch(ctx context.Context, origin string) (robotsEntry, error) {
	allowAll := robotsEntry{fetchedAt: time.Now()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return allowAll, fmt.Errorf("create robots.txt request for %s: %w", origin, err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return allowAll, fmt.Errorf("fetch robots.txt for %s: %w", origin, err)
	}
	defer resp.Body.Close()

	// Missing or broken robots.txt allows everything
	if resp.StatusCode >= 400 {
		return allowAll, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		return allowAll, fmt.Errorf("read robots.txt for %s: %w", origin, err)
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return allowAll, fmt.Errorf("parse robots.txt for %s: %w", origin, err)
	}
	return robotsEntry{data: data, fetchedAt: time.Now()}, nil
}

// ClearCache forgets every cached robots.txt.
func (r *RobotsChecker) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.cache)
}
