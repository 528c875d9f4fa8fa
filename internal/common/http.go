package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the originating client address, preferring proxy headers
// over the socket peer. The first parseable X-Forwarded-For entry wins.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for _, part := range strings.Split(fwd, ",") {
			if candidate := strings.TrimSpace(part); candidate != "" {
				return candidate
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
