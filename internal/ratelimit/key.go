package ratelimit

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// UnknownClientKey is used when a request carries no usable peer address.
const UnknownClientKey = "unknown"

// KeyFunc derives a rate limit key from a request.
type KeyFunc func(r *http.Request) string

// ClientKey returns the IP of the directly connected peer. Forwarding
// headers are ignored because clients control them. IPv6 zones are kept so
// link-local peers on different addresses or interfaces stay distinct.
func ClientKey(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return UnknownClientKey
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		// RemoteAddr without a port.
		host = strings.Trim(addr, "[]")
	}

	ip, err := netip.ParseAddr(host)
	if err != nil {
		return UnknownClientKey
	}
	return ip.Unmap().String()
}
