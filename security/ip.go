package security

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP resolves the address the rate limiter and audit log attribute a
// sign-in to. With trustProxy off the socket peer is used as-is; with it on,
// X-Forwarded-For (then X-Real-IP) is consulted, walking past the
// trustedProxyCount hops this deployment controls. Never enable trustProxy on
// a directly exposed listener: both headers are client-controlled there and
// would let an attacker spread rate-limit buckets across arbitrary addresses.
func GetClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := forwardedClient(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
			return ip
		}
	}
	return peerAddress(r.RemoteAddr)
}

// forwardedClient picks the client entry out of an X-Forwarded-For chain of
// the form "client, proxy1, proxy2". The rightmost trustedProxyCount entries
// are our own hops, so the client sits immediately to their left. A count of
// zero is treated as one; a chain shorter than the proxy count yields its
// leftmost entry.
func forwardedClient(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}

	hops := strings.Split(xff, ",")
	if trustedProxyCount < 1 {
		trustedProxyCount = 1
	}
	idx := len(hops) - trustedProxyCount - 1
	if idx < 0 {
		idx = 0
	}

	ip := strings.TrimSpace(hops[idx])
	if net.ParseIP(ip) == nil {
		return ""
	}
	return ip
}

// peerAddress strips the port from a RemoteAddr, tolerating bare IPs.
func peerAddress(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		if net.ParseIP(remoteAddr) != nil {
			return remoteAddr
		}
		return ""
	}
	return host
}
