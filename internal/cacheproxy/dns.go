package cacheproxy

import (
	"context"
	"fmt"
	"net"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// dnsResolver resolves hostnames to IPv4 addresses, caching the result
// for a short TTL so repeated requests to the same origin don't pay a DNS
// round trip on every Upstream Client fetch. go-cache's TTL-sweep design
// fits this exactly — unlike the Cache Store, a stale DNS entry should
// simply expire and be re-resolved, not be LRU-evicted under a byte
// budget.
type dnsResolver struct {
	cache    *gocache.Cache
	resolver *net.Resolver
}

func newDNSResolver(ttl time.Duration) *dnsResolver {
	return &dnsResolver{
		cache:    gocache.New(ttl, 2*ttl),
		resolver: net.DefaultResolver,
	}
}

// Resolve returns an IPv4 address for host, consulting the cache first.
// A host that is already a literal IP address is returned as is, without
// a lookup; an IPv6 literal therefore yields an IPv6 address.
func (d *dnsResolver) Resolve(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}

	if cached, ok := d.cache.Get(host); ok {
		return cached.(net.IP), nil
	}

	addrs, err := d.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", host, err)
	}

	ip := pickIPv4(addrs)
	if ip == nil {
		return nil, fmt.Errorf("resolving %s: no IPv4 address found", host)
	}

	d.cache.SetDefault(host, ip)
	return ip, nil
}

func pickIPv4(addrs []net.IPAddr) net.IP {
	for _, addr := range addrs {
		if v4 := addr.IP.To4(); v4 != nil {
			return v4
		}
	}
	return nil
}
