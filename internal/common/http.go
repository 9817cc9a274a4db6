package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the caller address without its port. Behind a proxy it
// relies on chi's RealIP middleware having rewritten RemoteAddr.
func ClientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
