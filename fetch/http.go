package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/lukemcguire/linkcrawl/config"
	"github.com/lukemcguire/linkcrawl/result"
	"github.com/lukemcguire/linkcrawl/urlutil"
)

// HTTPOptions configures an HTTPFetcher.
type HTTPOptions struct {
	Timeout       time.Duration // Per-attempt deadline when the request has none
	UserAgent     string
	Proxy         string // Proxy URL; empty uses the environment
	MaxBodySize   int64  // Body bytes read for link extraction; 0 is unlimited
	Retry         RetryPolicy
	RateLimit     int // Requests per second; 0 disables pacing
	AdaptiveRate  bool
	TargetRTT     time.Duration
	RespectRobots bool
}

// HTTPOptionsFrom derives HTTPOptions from a crawl configuration.
func HTTPOptionsFrom(cfg config.Config) HTTPOptions {
	return HTTPOptions{
		Timeout:     cfg.Timeout,
		UserAgent:   cfg.UserAgent,
		Proxy:       cfg.Proxy,
		MaxBodySize: cfg.MaxBodySize,
		Retry: RetryPolicy{
			MaxRetries: cfg.Retries,
			BaseDelay:  cfg.RetryBaseDelay,
			MaxDelay:   cfg.RetryMaxDelay,
		},
		RateLimit:     cfg.RateLimit,
		AdaptiveRate:  cfg.AdaptiveRate,
		TargetRTT:     cfg.TargetRTT,
		RespectRobots: cfg.RespectRobots,
	}
}

// HTTPFetcher checks http and https URLs.
//
// URLs that are only checked are requested with HEAD, falling back to GET
// when the server rejects HEAD. URLs that are recursed are requested with
// GET and their HTML bodies are scanned for links. Redirects are never
// followed; they are reported so the crawler can queue the target.
type HTTPFetcher struct {
	client  *http.Client
	opts    HTTPOptions
	limiter *AdaptiveLimiter
	robots  *RobotsChecker
	logger  *zap.Logger
}

// NewHTTPFetcher creates an HTTPFetcher. A nil logger disables logging.
func NewHTTPFetcher(opts HTTPOptions, logger *zap.Logger) (*HTTPFetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	f := &HTTPFetcher{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		opts:   opts,
		logger: logger,
	}
	if opts.RateLimit > 0 {
		f.limiter = NewAdaptiveLimiter(opts.RateLimit, opts.TargetRTT, opts.AdaptiveRate)
	}
	if opts.RespectRobots {
		// robots.txt is often redirected (http to https), so this client follows.
		f.robots = NewRobotsChecker(&http.Client{Transport: transport, Timeout: opts.Timeout}, opts.UserAgent)
	}
	return f, nil
}

// Supports reports whether scheme is http or https.
func (f *HTTPFetcher) Supports(scheme string) bool {
	return scheme == "http" || scheme == "https"
}

// Limiter returns the rate limiter, or nil when pacing is disabled.
func (f *HTTPFetcher) Limiter() *AdaptiveLimiter {
	return f.limiter
}

// Fetch checks req.URL, retrying transient failures.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) Outcome {
	u, err := url.Parse(req.URL)
	if err != nil {
		return Fail(result.KindInvalidURL, fmt.Errorf("parse URL: %w", err))
	}

	if f.robots != nil {
		allowed, robotsErr := f.robots.Allowed(ctx, u)
		if robotsErr != nil {
			f.logger.Debug("robots.txt unavailable, allowing",
				zap.String("url", req.URL), zap.Error(robotsErr))
		}
		if !allowed {
			return Fail(result.KindRobotsDenied, errors.New("disallowed by robots.txt"))
		}
	}

	return f.opts.Retry.Do(ctx, func(ctx context.Context) Outcome {
		return f.attempt(ctx, u, req)
	})
}

func (f *HTTPFetcher) attempt(ctx context.Context, u *url.URL, req Request) Outcome {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return Fail(result.ClassifyError(err, 0, false), err)
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = f.opts.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	method := http.MethodHead
	if req.Recurse {
		method = http.MethodGet
	}

	start := time.Now()
	resp, err := f.do(ctx, method, u)
	if err == nil && method == http.MethodHead &&
		(resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented) {
		resp.Body.Close()
		method = http.MethodGet
		resp, err = f.do(ctx, method, u)
	}
	if err != nil {
		return Fail(result.ClassifyError(err, 0, false), err)
	}
	defer resp.Body.Close()

	if f.limiter != nil {
		f.limiter.ObserveRTT(time.Since(start))
	}

	f.logger.Debug("http response",
		zap.String("url", u.String()),
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("rtt", time.Since(start)))

	status := resp.StatusCode
	if status >= 300 && status < 400 && resp.Header.Get("Location") != "" {
		return f.redirect(u, resp)
	}
	if status >= 400 {
		return Fail(result.ClassifyError(nil, status, false), errors.New(resp.Status)).WithStatus(status)
	}

	header := resp.Header.Get("Content-Type")
	size := max(resp.ContentLength, 0)
	if !req.Recurse || method == http.MethodHead || isBinaryContentType(header) {
		return Content(status, DetectContentType(header, nil, u.Path), size, nil)
	}

	var body io.Reader = resp.Body
	if f.opts.MaxBodySize > 0 {
		body = io.LimitReader(resp.Body, f.opts.MaxBodySize+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return Fail(result.ClassifyError(err, 0, false), fmt.Errorf("read body: %w", err)).WithStatus(status)
	}

	var warnings []string
	if f.opts.MaxBodySize > 0 && int64(len(data)) > f.opts.MaxBodySize {
		data = data[:f.opts.MaxBodySize]
		warnings = append(warnings, fmt.Sprintf("body truncated to %d bytes", f.opts.MaxBodySize))
	}

	contentType := DetectContentType(header, data, u.Path)
	out := Content(status, contentType, int64(len(data)), nil)
	if IsHTML(contentType) {
		if header == "" {
			header = contentType
		}
		links, extractErr := ExtractLinks(bytes.NewReader(data), header, resp.Request.URL)
		if extractErr != nil {
			warnings = append(warnings, fmt.Sprintf("extract links: %v", extractErr))
		}
		out.Links = links
	}
	for _, w := range warnings {
		out = out.WithWarning(w)
	}
	return out
}

func (f *HTTPFetcher) do(ctx context.Context, method string, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}
	return f.client.Do(req)
}

// redirect reports the Location of a 3xx response. A redirect to the same
// resource is a loop.
func (f *HTTPFetcher) redirect(u *url.URL, resp *http.Response) Outcome {
	status := resp.StatusCode
	target, err := resp.Location()
	if err != nil {
		return Fail(result.KindInvalidURL, fmt.Errorf("parse redirect location: %w", err)).WithStatus(status)
	}

	from, fromErr := urlutil.Normalize(u.String(), "")
	to, toErr := urlutil.Normalize(target.String(), "")
	if toErr != nil {
		return Fail(result.KindInvalidURL, toErr).WithStatus(status)
	}
	if fromErr == nil && from.Normalized == to.Normalized {
		return Fail(result.KindRedirectLoop, fmt.Errorf("%s redirects to itself", from.Normalized)).WithStatus(status)
	}
	return Redirect(status, to.Normalized)
}
