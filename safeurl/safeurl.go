// Package safeurl validates untrusted URL-like fields before they reach
// anything that fetches. Content-addressed identifiers and inline data pass
// untouched; http(s) URLs must not point at loopback, link-local (including
// the cloud metadata address), or private network targets; every other
// scheme is rejected.
package safeurl

import (
	"context"
	"net"
	"net/url"
	"strings"
	"time"
)

const lookupTimeout = 3 * time.Second

// Validator decides whether a reference is safe to hand to a fetcher.
// Hostname resolution is injectable for tests.
type Validator struct {
	lookupIP func(ctx context.Context, host string) ([]net.IP, error)
}

// New creates a validator resolving hostnames with the default resolver.
func New() *Validator {
	return &Validator{
		lookupIP: func(ctx context.Context, host string) ([]net.IP, error) {
			addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			ips := make([]net.IP, len(addrs))
			for i, a := range addrs {
				ips[i] = a.IP
			}
			return ips, nil
		},
	}
}

// NewWithLookup creates a validator with a custom hostname lookup.
func NewWithLookup(lookup func(ctx context.Context, host string) ([]net.IP, error)) *Validator {
	return &Validator{lookupIP: lookup}
}

// IsSafeReference reports whether value may be passed on. Non-URL-shaped
// values are opaque content identifiers and pass; URL-shaped values pointing
// at internal network targets fail, as do URL-shaped values whose host
// cannot be resolved.
func (v *Validator) IsSafeReference(value string) bool {
	if value == "" {
		return false
	}

	if isContentID(value) || strings.HasPrefix(value, "data:") {
		return true
	}

	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" {
		// Not URL-shaped: treat as an opaque content identifier.
		return true
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" || host == "localhost" || strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".internal") {
		return false
	}

	if ip := net.ParseIP(host); ip != nil {
		return ipIsPublic(ip)
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	ips, err := v.lookupIP(ctx, host)
	if err != nil || len(ips) == 0 {
		return false
	}
	for _, ip := range ips {
		if !ipIsPublic(ip) {
			return false
		}
	}
	return true
}

// ipIsPublic rejects loopback, RFC1918 private, link-local (which covers the
// 169.254.169.254 metadata address), unspecified and multicast addresses.
func ipIsPublic(ip net.IP) bool {
	switch {
	case ip.IsLoopback(),
		ip.IsPrivate(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsUnspecified(),
		ip.IsMulticast():
		return false
	}
	return true
}

// isContentID recognizes content-addressed identifiers by structure alone;
// they are never fetched here. CIDv0 is "Qm" plus 44 base58 characters;
// CIDv1 in common base32 encodings starts with "baf".
func isContentID(value string) bool {
	if len(value) == 46 && strings.HasPrefix(value, "Qm") && isBase58(value[2:]) {
		return true
	}
	if len(value) >= 8 && strings.HasPrefix(value, "baf") && isBase32Lower(value) {
		return true
	}
	return false
}

func isBase58(s string) bool {
	for _, c := range s {
		switch {
		case c >= '1' && c <= '9', c >= 'A' && c <= 'H', c >= 'J' && c <= 'N',
			c >= 'P' && c <= 'Z', c >= 'a' && c <= 'k', c >= 'm' && c <= 'z':
		default:
			return false
		}
	}
	return true
}

func isBase32Lower(s string) bool {
	for _, c := range s {
		if (c < 'a' || c > 'z') && (c < '2' || c > '7') {
			return false
		}
	}
	return true
}
