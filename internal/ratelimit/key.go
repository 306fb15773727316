package ratelimit

import (
	"net"
	"net/http"
	"strings"

	"github.com/poormans/rategate/internal/domain"
)

const (
	anonymousKey = "anonymous"
	globalKey    = "global"

	defaultUserHeader   = "X-User-Id"
	defaultAPIKeyHeader = "X-API-Key"
)

// ClientIP extracts the caller's address. With trustProxy it honors the
// first X-Forwarded-For hop, otherwise the socket peer wins.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ResolveKey turns a request into the client identity a policy buckets on.
// Identities that cannot be resolved collapse into "anonymous".
func ResolveKey(p *domain.Policy, r *http.Request) string {
	switch p.LimitType {
	case domain.LimitIPBased:
		return ClientIP(r, p.TrustProxy)
	case domain.LimitUserBased:
		header := p.HeaderName
		if header == "" {
			header = defaultUserHeader
		}
		if v := r.Header.Get(header); v != "" {
			return v
		}
		return anonymousKey
	case domain.LimitAPIKey:
		header := p.HeaderName
		if header == "" {
			header = defaultAPIKeyHeader
		}
		if v := r.Header.Get(header); v != "" {
			return v
		}
		return anonymousKey
	case domain.LimitSessionBased:
		name := p.SessionCookieName
		if name == "" {
			name = domain.DefaultSessionCookie
		}
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value
		}
		return anonymousKey
	case domain.LimitGlobal:
		return globalKey
	}
	return anonymousKey
}
