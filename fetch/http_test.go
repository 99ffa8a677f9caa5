package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/lukemcguire/linkcrawl/config"
	"github.com/lukemcguire/linkcrawl/result"
)

func testOptions() HTTPOptions {
	return HTTPOptions{
		Timeout:   2 * time.Second,
		UserAgent: "linkcrawl-test",
		Retry:     RetryPolicy{MaxRetries: 0},
	}
}

func newTestFetcher(t *testing.T, opts HTTPOptions) *HTTPFetcher {
	t.Helper()
	f, err := NewHTTPFetcher(opts, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewHTTPFetcher() error = %v", err)
	}
	return f
}

func newSiteServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><a href="/a">A</a>
<a href="https://other.example/x">X</a></body></html>`)
	})
	mux.HandleFunc("/get-only", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/target#frag", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/self", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/self", http.StatusFound)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})
	mux.HandleFunc("/image.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		fmt.Fprint(w, `<a href="/not-a-link">`)
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<a href="/first">1</a>`+strings.Repeat(" ", 100)+`<a href="/second">2</a>`)
	})
	mux.HandleFunc("/ua", func(w http.ResponseWriter, r *http.Request) {
		if r.UserAgent() != "linkcrawl-test" {
			w.WriteHeader(http.StatusForbidden)
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	server := newSiteServer(t)
	f := newTestFetcher(t, testOptions())

	tests := []struct {
		name        string
		path        string
		recurse     bool
		wantKind    OutcomeKind
		wantStatus  int
		wantFailure result.FailureKind
		wantLinks   int
		wantTarget  string
	}{
		{"recursed page yields links", "/", true, OutcomeContent, 200, "", 2, ""},
		{"checked page yields no links", "/", false, OutcomeContent, 200, "", 0, ""},
		{"HEAD rejected falls back to GET", "/get-only", false, OutcomeContent, 200, "", 0, ""},
		{"missing page is 4xx", "/missing", false, OutcomeFailure, 404, result.Kind4xx, 0, ""},
		{"redirect is reported", "/moved", false, OutcomeRedirect, 301, "", 0, server.URL + "/target"},
		{"self redirect is a loop", "/self", false, OutcomeFailure, 302, result.KindRedirectLoop, 0, ""},
		{"binary body is not scanned", "/image.png", true, OutcomeContent, 200, "", 0, ""},
		{"user agent is sent", "/ua", false, OutcomeContent, 200, "", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.Fetch(context.Background(), Request{URL: server.URL + tt.path, Recurse: tt.recurse})
			if got.Kind != tt.wantKind {
				t.Fatalf("Kind = %v, want %v (err: %v)", got.Kind, tt.wantKind, got.Err)
			}
			if got.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", got.StatusCode, tt.wantStatus)
			}
			if got.Failure != tt.wantFailure {
				t.Errorf("Failure = %q, want %q", got.Failure, tt.wantFailure)
			}
			if len(got.Links) != tt.wantLinks {
				t.Errorf("got %d links, want %d: %+v", len(got.Links), tt.wantLinks, got.Links)
			}
			if got.Target != tt.wantTarget {
				t.Errorf("Target = %q, want %q", got.Target, tt.wantTarget)
			}
		})
	}
}

func TestHTTPFetcher_LinkProvenance(t *testing.T) {
	server := newSiteServer(t)
	f := newTestFetcher(t, testOptions())

	got := f.Fetch(context.Background(), Request{URL: server.URL + "/", Recurse: true})
	if len(got.Links) != 2 {
		t.Fatalf("got %d links, want 2", len(got.Links))
	}
	first := got.Links[0]
	if first.URL != "/a" || first.Base != server.URL+"/" || first.Line != 1 {
		t.Errorf("first link = %+v", first)
	}
	if second := got.Links[1]; second.Line != 2 || second.Column != 1 {
		t.Errorf("second link at %d:%d, want 2:1", second.Line, second.Column)
	}
	if got.ContentType != "text/html" {
		t.Errorf("ContentType = %q, want text/html", got.ContentType)
	}
}

func TestHTTPFetcher_Timeout(t *testing.T) {
	server := newSiteServer(t)
	f := newTestFetcher(t, testOptions())

	start := time.Now()
	got := f.Fetch(context.Background(), Request{URL: server.URL + "/slow", Timeout: 50 * time.Millisecond})

	if got.Failure != result.KindTimeout {
		t.Errorf("Failure = %q, want %q (err: %v)", got.Failure, result.KindTimeout, got.Err)
	}
	if elapsed := time.Since(start); elapsed > 900*time.Millisecond {
		t.Errorf("Fetch took %v, should stop at the deadline", elapsed)
	}
}

func TestHTTPFetcher_Cancelled(t *testing.T) {
	server := newSiteServer(t)
	f := newTestFetcher(t, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	got := f.Fetch(ctx, Request{URL: server.URL + "/slow"})
	if got.Failure != result.KindCancelled {
		t.Errorf("Failure = %q, want %q (err: %v)", got.Failure, result.KindCancelled, got.Err)
	}
}

func TestHTTPFetcher_BodyLimit(t *testing.T) {
	server := newSiteServer(t)
	opts := testOptions()
	opts.MaxBodySize = 50
	f := newTestFetcher(t, opts)

	got := f.Fetch(context.Background(), Request{URL: server.URL + "/big", Recurse: true})
	if len(got.Links) != 1 || got.Links[0].URL != "/first" {
		t.Errorf("links = %+v, want only /first", got.Links)
	}
	if len(got.Warnings) != 1 || !strings.Contains(got.Warnings[0], "truncated") {
		t.Errorf("Warnings = %v, want truncation warning", got.Warnings)
	}
	if got.Size != 50 {
		t.Errorf("Size = %d, want 50", got.Size)
	}
}

func TestHTTPFetcher_RetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	opts := testOptions()
	opts.Retry = fastPolicy()
	f := newTestFetcher(t, opts)

	got := f.Fetch(context.Background(), Request{URL: server.URL})
	if got.Kind != OutcomeContent {
		t.Errorf("Kind = %v, want content after retries (err: %v)", got.Kind, got.Err)
	}
	if n := attempts.Load(); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

func TestHTTPFetcher_RobotsDenied(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private/")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	opts := testOptions()
	opts.RespectRobots = true
	f := newTestFetcher(t, opts)

	denied := f.Fetch(context.Background(), Request{URL: server.URL + "/private/page"})
	if denied.Failure != result.KindRobotsDenied {
		t.Errorf("Failure = %q, want %q", denied.Failure, result.KindRobotsDenied)
	}
	if denied.Failure.Status() != result.StatusWarning {
		t.Errorf("robots denial should be a warning, got %q", denied.Failure.Status())
	}

	allowed := f.Fetch(context.Background(), Request{URL: server.URL + "/public"})
	if allowed.Kind != OutcomeContent {
		t.Errorf("Kind = %v, want content (err: %v)", allowed.Kind, allowed.Err)
	}
}

func TestHTTPFetcher_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	target := server.URL
	server.Close()

	f := newTestFetcher(t, testOptions())
	got := f.Fetch(context.Background(), Request{URL: target})
	if got.Failure != result.KindConnectionRefused {
		t.Errorf("Failure = %q, want %q (err: %v)", got.Failure, result.KindConnectionRefused, got.Err)
	}
}

func TestNewHTTPFetcher_InvalidProxy(t *testing.T) {
	opts := testOptions()
	opts.Proxy = "://bad proxy"
	if _, err := NewHTTPFetcher(opts, nil); err == nil {
		t.Error("NewHTTPFetcher() should reject an invalid proxy URL")
	}
}

func TestHTTPOptionsFrom(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimit = 0
	cfg.Retries = 4

	opts := HTTPOptionsFrom(cfg)
	if opts.Retry.MaxRetries != 4 || opts.Retry.BaseDelay != cfg.RetryBaseDelay {
		t.Errorf("Retry = %+v, want values from config", opts.Retry)
	}
	if opts.UserAgent != cfg.UserAgent || opts.Timeout != cfg.Timeout {
		t.Errorf("opts = %+v, want values from config", opts)
	}

	f := newTestFetcher(t, opts)
	if f.Limiter() != nil {
		t.Error("RateLimit 0 should disable the limiter")
	}
}
