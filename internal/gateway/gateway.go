package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/poormans/rategate/internal/domain"
)

type route struct {
	prefix string
	target *url.URL
	proxy  *httputil.ReverseProxy
}

// Proxy forwards requests to the upstream owning the longest matching
// path prefix. The full original path goes through untouched.
type Proxy struct {
	routes []route
	log    *zap.Logger
}

func New(routes []domain.Route, log *zap.Logger) (*Proxy, error) {
	p := &Proxy{log: log}
	for _, r := range routes {
		// "/test/*" and "/test/" configure the same prefix
		prefix := strings.TrimSuffix(r.Prefix, "*")
		target, err := url.Parse(r.Upstream)
		if err != nil {
			return nil, fmt.Errorf("parse upstream %q: %w", r.Upstream, err)
		}
		if target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("upstream %q: need scheme and host", r.Upstream)
		}

		rp := httputil.NewSingleHostReverseProxy(target)
		rp.ErrorHandler = p.upstreamError(r.Upstream)
		p.routes = append(p.routes, route{prefix: prefix, target: target, proxy: rp})
	}
	sort.SliceStable(p.routes, func(i, j int) bool {
		return len(p.routes[i].prefix) > len(p.routes[j].prefix)
	})
	return p, nil
}

func (p *Proxy) upstreamError(upstream string) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		p.log.Error("upstream request failed",
			zap.String("upstream", upstream),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"upstream unavailable"}`))
	}
}

// Match reports the upstream base URL owning path, if any.
func (p *Proxy) Match(path string) (string, bool) {
	for i := range p.routes {
		if strings.HasPrefix(path, p.routes[i].prefix) {
			return p.routes[i].target.String(), true
		}
	}
	return "", false
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for i := range p.routes {
		if strings.HasPrefix(r.URL.Path, p.routes[i].prefix) {
			p.routes[i].proxy.ServeHTTP(w, r)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"error":"no route"}`))
}

// Upstreams lists the distinct backends behind the route table, for the
// health rechecker.
func (p *Proxy) Upstreams() []domain.Upstream {
	seen := make(map[string]bool)
	var out []domain.Upstream
	for _, rt := range p.routes {
		base := rt.target.String()
		if seen[base] {
			continue
		}
		seen[base] = true
		out = append(out, domain.Upstream{
			ID:      domain.UpstreamID(rt.target.Host),
			BaseURL: base,
		})
	}
	return out
}
