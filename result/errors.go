package result

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
)

// FailureKind classifies why a URL check failed.
type FailureKind string

const (
	KindInvalidURL        FailureKind = "invalid_url"
	KindUnsupportedScheme FailureKind = "unsupported_scheme"
	KindTimeout           FailureKind = "timeout"
	KindDNSFailure        FailureKind = "dns_failure"
	KindConnectionRefused FailureKind = "connection_refused"
	KindConnection        FailureKind = "connection"
	Kind4xx               FailureKind = "4xx"
	Kind5xx               FailureKind = "5xx"
	KindRedirectLoop      FailureKind = "redirect_loop"
	KindRobotsDenied      FailureKind = "robots_denied"
	KindNotFound          FailureKind = "not_found"
	KindCancelled         FailureKind = "cancelled"
	KindInternal          FailureKind = "internal"
	KindUnknown           FailureKind = "unknown"
)

// Status maps a failure kind to the result status it produces.
func (k FailureKind) Status() Status {
	switch k {
	case "":
		return StatusOK
	case KindRobotsDenied:
		return StatusWarning
	case KindTimeout:
		return StatusTimeout
	default:
		return StatusError
	}
}

// ClassifyError determines the failure kind based on the error, protocol
// status code, and whether a redirect loop was detected.
func ClassifyError(err error, statusCode int, isRedirectLoop bool) FailureKind {
	// Redirect loop has the highest priority
	if isRedirectLoop {
		return KindRedirectLoop
	}

	if statusCode > 0 {
		if statusCode >= 400 && statusCode <= 499 {
			return Kind4xx
		}
		if statusCode >= 500 {
			return Kind5xx
		}
	}

	if err == nil {
		return KindUnknown
	}

	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, os.ErrNotExist) {
		return KindNotFound
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindDNSFailure
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return KindTimeout
		}
		if opErr.Op == "dial" && strings.Contains(opErr.Error(), "connection refused") {
			return KindConnectionRefused
		}
		return KindConnection
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	return KindUnknown
}

// FormatKind returns a human-readable label for a failure kind.
func FormatKind(kind FailureKind) string {
	switch kind {
	case KindInvalidURL:
		return "Invalid URLs"
	case KindUnsupportedScheme:
		return "Unsupported Schemes"
	case KindTimeout:
		return "Timeouts"
	case KindDNSFailure:
		return "DNS Failures"
	case KindConnectionRefused:
		return "Connection Refused"
	case KindConnection:
		return "Connection Errors"
	case Kind4xx:
		return "Client Errors (4xx)"
	case Kind5xx:
		return "Server Errors (5xx)"
	case KindRedirectLoop:
		return "Redirect Loops"
	case KindRobotsDenied:
		return "Denied by robots.txt"
	case KindNotFound:
		return "Not Found"
	case KindCancelled:
		return "Cancelled"
	case KindInternal:
		return "Internal Errors"
	default:
		return "Other Errors"
	}
}
