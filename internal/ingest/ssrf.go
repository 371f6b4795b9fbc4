package ingest

import (
	"context"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// metadataAddrs are cloud metadata endpoints blocked even though some of
// them sit outside the RFC1918/link-local ranges.
var metadataAddrs = map[string]bool{
	"169.254.169.254": true,
	"169.254.170.2":   true,
	"100.100.100.200": true,
}

// Resolver is the DNS lookup the guard uses; *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Guard validates externally supplied URLs before any byte is fetched,
// HEAD probes included. Every resolved address must be publicly routable;
// a single private, loopback, link-local, multicast or metadata address
// rejects the whole URL. Unparseable addresses reject too: fail closed.
type Guard struct {
	Resolver Resolver
}

func NewGuard() *Guard {
	return &Guard{Resolver: net.DefaultResolver}
}

// Validate checks u and returns the parsed URL on success.
func (g *Guard) Validate(ctx context.Context, raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, Wrap(KindMalformedURL, err, "parsing url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, Errf(KindMalformedURL, "scheme %q not allowed", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return nil, Errf(KindMalformedURL, "url has no host")
	}

	// A literal IP skips DNS but gets the same checks.
	if addr, err := netip.ParseAddr(host); err == nil {
		if reason := blockedReason(addr); reason != "" {
			return nil, Errf(KindSSRFBlocked, "address %s is %s", addr, reason)
		}
		return u, nil
	}

	addrs, err := g.Resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, Wrap(KindDNSFailure, err, "resolving %q", host)
	}
	if len(addrs) == 0 {
		return nil, Errf(KindDNSFailure, "no addresses for %q", host)
	}
	for _, a := range addrs {
		addr, err := netip.ParseAddr(strings.TrimSuffix(a, "."))
		if err != nil {
			return nil, Wrap(KindSSRFBlocked, err, "unparseable resolved address %q", a)
		}
		if reason := blockedReason(addr); reason != "" {
			return nil, Errf(KindSSRFBlocked, "%q resolves to %s (%s)", host, addr, reason)
		}
	}
	return u, nil
}

func blockedReason(addr netip.Addr) string {
	addr = addr.Unmap()
	switch {
	case metadataAddrs[addr.String()]:
		return "a cloud metadata endpoint"
	case addr.IsLoopback():
		return "loopback"
	case addr.IsPrivate():
		return "private"
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return "link-local"
	case addr.IsMulticast():
		return "multicast"
	case addr.IsUnspecified():
		return "unspecified"
	default:
		return ""
	}
}
