package gate

import (
	"net"
	"net/url"
	"strings"
)

// IPAllowed reports whether ip is in the whitelist. An empty whitelist allows everyone.
func IPAllowed(whitelist []string, ip string) bool {
	if len(whitelist) == 0 {
		return true
	}
	ip = normalizeIP(ip)
	if ip == "" {
		return false
	}
	for _, w := range whitelist {
		if normalizeIP(w) == ip {
			return true
		}
	}
	return false
}

// DomainAllowed reports whether domain is in the whitelist, comparing
// normalized hosts. An empty whitelist allows everyone.
func DomainAllowed(whitelist []string, domain string) bool {
	if len(whitelist) == 0 {
		return true
	}
	d := NormalizeDomain(domain)
	if d == "" {
		return false
	}
	for _, w := range whitelist {
		if NormalizeDomain(w) == d {
			return true
		}
	}
	return false
}

// NormalizeDomain reduces a domain, origin or referrer URL to a bare
// lowercase host without port or leading "www.".
func NormalizeDomain(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil {
			s = u.Host
		}
	} else if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		s = h
	}
	s = strings.ToLower(strings.TrimSuffix(s, "."))
	return strings.TrimPrefix(s, "www.")
}

// CallerDomain picks the caller's domain from the Origin header, then the Referer.
func CallerDomain(origin, referer string) string {
	if o := strings.TrimSpace(origin); o != "" && o != "null" {
		return o
	}
	return strings.TrimSpace(referer)
}

func normalizeIP(s string) string {
	s = strings.TrimSpace(s)
	if ip := net.ParseIP(s); ip != nil {
		return ip.String()
	}
	return s
}

// NormalizeList trims, normalizes with fn, drops blanks and de-duplicates.
// The result is never nil.
func NormalizeList(in []string, fn func(string) string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		n := fn(v)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// NormalizeIPs is NormalizeList for IP whitelists.
func NormalizeIPs(in []string) []string {
	return NormalizeList(in, normalizeIP)
}

// NormalizeDomains is NormalizeList for domain whitelists.
func NormalizeDomains(in []string) []string {
	return NormalizeList(in, NormalizeDomain)
}
