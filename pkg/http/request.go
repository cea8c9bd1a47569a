package http

import (
	"net"
	"net/http"
)

// ClientIP returns the request's client IP. The router runs chi's RealIP
// middleware, so RemoteAddr already reflects X-Forwarded-For / X-Real-IP
// when set by the front proxy.
func ClientIP(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}
