package observability

import (
	"net"
	"net/http"
	"strings"
)

// ClientIdentity describes who opened r: the authenticated username, the
// client-supplied device id and the best-known client address.
func ClientIdentity(r *http.Request, username string) IdentityInfo {
	return IdentityInfo{
		Username: username,
		DeviceID: r.Header.Get("X-Device-Id"),
		IP:       clientIP(r),
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-Ip, then the
// peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
