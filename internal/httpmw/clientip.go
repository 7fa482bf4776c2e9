package httpmw

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the best-effort client address: the first hop of the
// X-Forwarded-For chain when an upstream proxy supplied one, otherwise
// the socket peer address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
