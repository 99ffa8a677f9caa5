package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/lukemcguire/linkcrawl/result"
)

// Resolver looks up mail hosts. *net.Resolver satisfies it.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// MailtoFetcher checks mailto URLs. Addresses must parse; when CheckMX is
// set each domain must also have an MX or address record, otherwise the
// result carries a warning.
type MailtoFetcher struct {
	CheckMX  bool
	Timeout  time.Duration
	Resolver Resolver
}

// NewMailtoFetcher creates a MailtoFetcher using the system resolver.
func NewMailtoFetcher(checkMX bool, timeout time.Duration) *MailtoFetcher {
	return &MailtoFetcher{CheckMX: checkMX, Timeout: timeout, Resolver: net.DefaultResolver}
}

// Supports reports whether scheme is mailto.
func (m *MailtoFetcher) Supports(scheme string) bool {
	return scheme == "mailto"
}

// Fetch validates the addresses in req.URL.
func (m *MailtoFetcher) Fetch(ctx context.Context, req Request) Outcome {
	addrs, err := mailtoAddresses(req.URL)
	if err != nil {
		return Fail(result.KindInvalidURL, err)
	}

	out := Content(0, "", 0, nil)
	if !m.CheckMX || m.Resolver == nil {
		return out
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = m.Timeout
	}
	seen := make(map[string]bool)
	for _, addr := range addrs {
		domain := addr.Address[strings.LastIndex(addr.Address, "@")+1:]
		if seen[domain] {
			continue
		}
		seen[domain] = true

		if err := ctx.Err(); err != nil {
			return Fail(result.KindCancelled, err)
		}
		if !m.hasMailHost(ctx, domain, timeout) {
			out = out.WithWarning(fmt.Sprintf("no mail host for domain %s", domain))
		}
	}
	return out
}

func (m *MailtoFetcher) hasMailHost(ctx context.Context, domain string, timeout time.Duration) bool {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if mx, err := m.Resolver.LookupMX(ctx, domain); err == nil && len(mx) > 0 {
		return true
	}
	hosts, err := m.Resolver.LookupHost(ctx, domain)
	return err == nil && len(hosts) > 0
}

// mailtoAddresses returns the recipients of a mailto URL: the path plus
// any to= query parameters.
func mailtoAddresses(raw string) ([]*mail.Address, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}

	to := u.Opaque
	if to == "" {
		to = u.Path
	}
	to, err = url.PathUnescape(to)
	if err != nil {
		return nil, fmt.Errorf("unescape mailto address: %w", err)
	}

	var parts []string
	if strings.TrimSpace(to) != "" {
		parts = append(parts, to)
	}
	for key, values := range u.Query() {
		if strings.EqualFold(key, "to") {
			parts = append(parts, values...)
		}
	}
	if len(parts) == 0 {
		return nil, errors.New("mailto URL has no address")
	}

	list := strings.Join(parts, ",")
	addrs, err := mail.ParseAddressList(list)
	if err != nil {
		return nil, fmt.Errorf("parse mail address %q: %w", list, err)
	}
	return addrs, nil
}
