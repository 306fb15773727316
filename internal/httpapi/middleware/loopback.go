package middleware

import (
	"net"
	"net/http"
)

// LoopbackOnly rejects peers that are not on the loopback interface. The
// admin plane binds loopback by default, but a rebind to 0.0.0.0 must not
// silently open it up; allowRemote is the explicit opt-in.
func LoopbackOnly(allowRemote bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if allowRemote {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			ip := net.ParseIP(host)
			if ip == nil || !ip.IsLoopback() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"loopback only"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
