// Package security hardens the pipeline's outbound HTTP path.
//
// The delivery worker runs inside the VPC, one hop from the cloud metadata
// service and internal admin surfaces. The push gateway URL is injected
// through configuration and the gateway's redirects are followed by the
// client, so SafeTransport validates every connection at dial time: requests
// may only reach public address space, never loopback, RFC 1918 ranges, or
// link-local (169.254.169.254 included).
package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// dnsTimeout is the maximum time allowed for DNS resolution.
const dnsTimeout = 500 * time.Millisecond

// ErrSSRFBlocked is returned when a request targets a blocked IP range.
var ErrSSRFBlocked = errors.New("ssrf: request to blocked IP range")

// ErrSSRFDNSTimeout is returned when DNS resolution exceeds the timeout.
var ErrSSRFDNSTimeout = errors.New("ssrf: DNS resolution timeout")

// ErrSSRFTooManyRedirects is returned when the redirect limit is exceeded.
var ErrSSRFTooManyRedirects = errors.New("ssrf: too many redirects")

// ErrSSRFDNSFailed is returned when DNS resolution fails entirely.
var ErrSSRFDNSFailed = errors.New("ssrf: DNS resolution failed")

// blockedCIDRs lists the address ranges outbound connections must never
// reach. The list is static, so a parse failure is a programmer error and
// panics at init.
var blockedCIDRs = []string{
	"127.0.0.0/8",    // Loopback
	"10.0.0.0/8",     // Private Class A
	"172.16.0.0/12",  // Private Class B
	"192.168.0.0/16", // Private Class C
	"169.254.0.0/16", // Link-local (cloud metadata)
	"0.0.0.0/8",      // Current network
	"224.0.0.0/4",    // Multicast
	"240.0.0.0/4",    // Reserved
	"100.64.0.0/10",  // Shared Address Space (CGN)
	"198.18.0.0/15",  // Benchmark testing
	"fc00::/7",       // IPv6 private
	"fe80::/10",      // IPv6 link-local
	"::1/128",        // IPv6 loopback
}

var blockedNets = mustParseCIDRs(blockedCIDRs)

func mustParseCIDRs(cidrs []string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("security: invalid blocked CIDR %q: %v", cidr, err))
		}
		nets = append(nets, ipNet)
	}
	return nets
}

// isBlockedIP checks if the given IP falls within any blocked CIDR range.
func isBlockedIP(ip net.IP) bool {
	for _, ipNet := range blockedNets {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// Resolver abstracts DNS resolution for testability.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// netResolver wraps net.Resolver to satisfy the Resolver interface.
type netResolver struct {
	r *net.Resolver
}

func (nr *netResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	return nr.r.LookupIPAddr(ctx, host)
}

// SafeTransport wraps http.Transport with dial-time IP validation. Every
// connection resolves the host first and refuses to dial when any resolved
// address falls in a blocked range.
type SafeTransport struct {
	// Base is the underlying http.Transport used for actual connections.
	Base *http.Transport

	// Resolver is used for DNS lookups. If nil, net.DefaultResolver is used.
	// Exposed for testing.
	Resolver Resolver
}

// NewSafeTransport creates a SafeTransport wrapping the provided base
// transport. If base is nil, a default http.Transport is used.
func NewSafeTransport(base *http.Transport) *SafeTransport {
	if base == nil {
		base = &http.Transport{}
	}

	st := &SafeTransport{Base: base}

	// Override the DialContext on the base transport to inject IP validation.
	base.DialContext = st.safeDialContext

	return st
}

// RoundTrip implements http.RoundTripper. It delegates to the base transport
// which has its DialContext overridden with IP validation.
func (st *SafeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return st.Base.RoundTrip(req)
}

// safeDialContext resolves the host to IP addresses, validates each against
// the blocked CIDR list, and only dials if all resolved IPs are safe.
func (st *SafeTransport) safeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("ssrf: invalid address %q: %w", addr, err)
	}

	// If the host is already an IP literal, validate it directly.
	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return nil, fmt.Errorf("%w: %s", ErrSSRFBlocked, ip.String())
		}
		dialer := &net.Dialer{}
		return dialer.DialContext(ctx, network, addr)
	}

	// Resolve DNS with a strict timeout.
	resolver := st.getResolver()
	dnsCtx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	ips, err := resolver.LookupIPAddr(dnsCtx, host)
	if err != nil {
		if dnsCtx.Err() != nil {
			return nil, fmt.Errorf("%w: host %q", ErrSSRFDNSTimeout, host)
		}
		return nil, fmt.Errorf("%w: host %q: %v", ErrSSRFDNSFailed, host, err)
	}

	if len(ips) == 0 {
		return nil, fmt.Errorf("%w: host %q resolved to no addresses", ErrSSRFDNSFailed, host)
	}

	// Validate ALL resolved IPs before connecting to any. This prevents DNS
	// rebinding attacks where one safe IP is mixed with a private IP.
	for _, ipAddr := range ips {
		if isBlockedIP(ipAddr.IP) {
			return nil, fmt.Errorf("%w: %s (resolved from %s)", ErrSSRFBlocked, ipAddr.IP.String(), host)
		}
	}

	// All IPs are safe. Dial the first one.
	target := net.JoinHostPort(ips[0].IP.String(), port)
	dialer := &net.Dialer{}
	return dialer.DialContext(ctx, network, target)
}

// getResolver returns the configured Resolver, or the default net.Resolver.
func (st *SafeTransport) getResolver() Resolver {
	if st.Resolver != nil {
		return st.Resolver
	}
	return &netResolver{r: net.DefaultResolver}
}

// CheckRedirect returns an http.Client CheckRedirect function that validates
// redirect targets against the blocklist and enforces a maximum number of
// redirects. The gateway should never redirect in normal operation, so any
// redirect chain is treated with suspicion rather than trust.
//
// resolver is optional; if nil, net.DefaultResolver is used.
func CheckRedirect(maxRedirects int, resolver Resolver) func(req *http.Request, via []*http.Request) error {
	if resolver == nil {
		resolver = &netResolver{r: net.DefaultResolver}
	}

	return func(req *http.Request, via []*http.Request) error {
		// Enforce redirect limit.
		if len(via) >= maxRedirects {
			return fmt.Errorf("%w: limit is %d", ErrSSRFTooManyRedirects, maxRedirects)
		}

		host := req.URL.Hostname()
		if host == "" {
			return fmt.Errorf("%w: redirect URL has no host", ErrSSRFBlocked)
		}

		// If the host is an IP literal, validate it directly.
		if ip := net.ParseIP(host); ip != nil {
			if isBlockedIP(ip) {
				return fmt.Errorf("%w: redirect to %s", ErrSSRFBlocked, ip.String())
			}
			return nil
		}

		// Resolve DNS for the redirect target with strict timeout.
		dnsCtx, cancel := context.WithTimeout(req.Context(), dnsTimeout)
		defer cancel()

		ips, err := resolver.LookupIPAddr(dnsCtx, host)
		if err != nil {
			if dnsCtx.Err() != nil {
				return fmt.Errorf("%w: redirect host %q", ErrSSRFDNSTimeout, host)
			}
			return fmt.Errorf("%w: redirect host %q: %v", ErrSSRFDNSFailed, host, err)
		}

		// Validate all resolved IPs.
		for _, ipAddr := range ips {
			if isBlockedIP(ipAddr.IP) {
				return fmt.Errorf("%w: redirect to %s (resolved from %s)", ErrSSRFBlocked, ipAddr.IP.String(), host)
			}
		}

		return nil
	}
}

// NewSafeHTTPClient creates an http.Client configured with SafeTransport and
// redirect checking. This is the client the push gateway egress uses.
func NewSafeHTTPClient(timeout time.Duration, maxRedirects int) *http.Client {
	transport := NewSafeTransport(nil)

	return &http.Client{
		Transport:     transport,
		Timeout:       timeout,
		CheckRedirect: CheckRedirect(maxRedirects, transport.Resolver),
	}
}
