package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequireKey_HeaderAndBearer(t *testing.T) {
	keys := Keys{"adm_key"}

	// X-API-Key -> 200
	req := httptest.NewRequest(http.MethodGet, "/api/admin/policies", nil)
	req.Header.Set("X-API-Key", "adm_key")
	rec := httptest.NewRecorder()
	RequireKey(keys)(okHandler).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("api key should pass; got %d", rec.Code)
	}

	// Bearer -> 200
	req = httptest.NewRequest(http.MethodGet, "/api/admin/policies", nil)
	req.Header.Set("Authorization", "Bearer adm_key")
	rec = httptest.NewRecorder()
	RequireKey(keys)(okHandler).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer should pass; got %d", rec.Code)
	}

	// Wrong key -> 401
	req = httptest.NewRequest(http.MethodGet, "/api/admin/policies", nil)
	req.Header.Set("X-API-Key", "nope")
	rec = httptest.NewRecorder()
	RequireKey(keys)(okHandler).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key should be 401; got %d", rec.Code)
	}

	// Missing key -> 401
	req = httptest.NewRequest(http.MethodGet, "/api/admin/policies", nil)
	rec = httptest.NewRecorder()
	RequireKey(keys)(okHandler).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key should be 401; got %d", rec.Code)
	}
}

func TestRequireKey_NoKeysConfigured(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/policies", nil)
	rec := httptest.NewRecorder()
	RequireKey(nil)(okHandler).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("no configured keys should allow all; got %d", rec.Code)
	}
}

func TestLoopbackOnly(t *testing.T) {
	cases := []struct {
		remote      string
		allowRemote bool
		want        int
	}{
		{"127.0.0.1:5000", false, http.StatusOK},
		{"[::1]:5000", false, http.StatusOK},
		{"192.168.1.50:5000", false, http.StatusForbidden},
		{"192.168.1.50:5000", true, http.StatusOK},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/policies", nil)
		req.RemoteAddr = c.remote
		rec := httptest.NewRecorder()
		LoopbackOnly(c.allowRemote)(okHandler).ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Fatalf("remote %s allowRemote=%v: want %d, got %d", c.remote, c.allowRemote, c.want, rec.Code)
		}
	}
}

func TestRequestLog_PassesThrough(t *testing.T) {
	h := RequestLog(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status should pass through the wrapper; got %d", rec.Code)
	}
	if rec.Body.String() != "short and stout" {
		t.Fatalf("body should pass through, got %q", rec.Body.String())
	}
}
