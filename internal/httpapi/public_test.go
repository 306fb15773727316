package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/poormans/rategate/internal/antibot"
	"github.com/poormans/rategate/internal/domain"
)

var hexToken = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestPublicHidesAdminSurface(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ts := httptest.NewServer(srv.PublicRouter())
	t.Cleanup(ts.Close)

	for _, path := range []string{"/api/admin", "/api/admin/policies", "/api/admin/config/x"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: want 404, got %d", path, resp.StatusCode)
		}
		if !strings.Contains(string(body), "404 page not found") {
			t.Errorf("%s: want the stock not-found page, got %q", path, body)
		}
	}
}

func TestPublicProxyAndRuleLimit(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "hello from %s", r.URL.Path)
	}))
	t.Cleanup(upstream.Close)

	srv, store := newTestServer(t, []domain.Route{{Prefix: "/test/", Upstream: upstream.URL}})
	ctx := context.Background()

	rule := &domain.Rule{
		Name:          "cap",
		PathPattern:   "/test/*",
		MaxRequests:   2,
		WindowSeconds: 60,
		Enabled:       true,
		Priority:      10,
	}
	if err := store.CreateRule(ctx, rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}
	if err := srv.Engine.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	ts := httptest.NewServer(srv.PublicRouter())
	t.Cleanup(ts.Close)

	for i := 0; i < 2; i++ {
		resp, err := http.Get(ts.URL + "/test/api/hello")
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("get %d: want 200, got %d", i, resp.StatusCode)
		}
		if string(body) != "hello from /test/api/hello" {
			t.Fatalf("get %d: unexpected body %q", i, body)
		}
	}

	resp, err := http.Get(ts.URL + "/test/api/hello")
	if err != nil {
		t.Fatalf("third get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("third get: want 429, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "rate limit exceeded") {
		t.Fatalf("third get: unexpected body %q", body)
	}

	// every decision ends up in the traffic log, newest first
	logs, err := store.RecentLogs(ctx, 10)
	if err != nil {
		t.Fatalf("recent logs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("want 3 log rows, got %d", len(logs))
	}
	if logs[0].Allowed {
		t.Fatal("newest row should be the denial")
	}
	want := fmt.Sprintf("rule:%d", rule.ID)
	if logs[0].MatchedBy != want {
		t.Fatalf("want matched_by %q, got %q", want, logs[0].MatchedBy)
	}

	// unrouted paths fall through the limiter to the proxy's 404
	resp, err = http.Get(ts.URL + "/nothing/here")
	if err != nil {
		t.Fatalf("unrouted get: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound || !strings.Contains(string(body), "no route") {
		t.Fatalf("unrouted: want 404 no route, got %d %q", resp.StatusCode, body)
	}
}

func TestPublicTokenFlow(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ts := httptest.NewServer(srv.PublicRouter())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/tokens/form")
	if err != nil {
		t.Fatalf("form: %v", err)
	}
	var form antibot.FormToken
	decodeBody(t, resp, &form)
	if !hexToken.MatchString(form.Token) {
		t.Fatalf("bad token %q", form.Token)
	}
	if form.HoneypotField != "website" || form.ExpiresIn != 600 {
		t.Fatalf("unexpected form payload: %+v", form)
	}

	// no cookie yet: the challenge hands out a token and sets the cookie
	resp, err = http.Get(ts.URL + "/api/tokens/challenge")
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	var issued map[string]string
	cookies := resp.Cookies()
	decodeBody(t, resp, &issued)
	if !hexToken.MatchString(issued["token"]) {
		t.Fatalf("bad challenge token %q", issued["token"])
	}
	var challenge *http.Cookie
	for _, c := range cookies {
		if c.Name == antibot.ChallengeCookie {
			challenge = c
		}
	}
	if challenge == nil {
		t.Fatal("challenge cookie not set")
	}
	if challenge.Value != issued["token"] {
		t.Fatal("cookie and body must carry the same token")
	}

	// presenting the cookie passes exactly once
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/tokens/challenge", nil)
	req.AddCookie(&http.Cookie{Name: antibot.ChallengeCookie, Value: challenge.Value})
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("challenge replay: %v", err)
	}
	var ok map[string]bool
	decodeBody(t, resp, &ok)
	if !ok["ok"] {
		t.Fatalf("want ok:true, got %v", ok)
	}

	// the token was consumed, a second try starts over
	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/api/tokens/challenge", nil)
	req.AddCookie(&http.Cookie{Name: antibot.ChallengeCookie, Value: challenge.Value})
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("second replay: %v", err)
	}
	var again map[string]any
	decodeBody(t, resp, &again)
	if _, reused := again["ok"]; reused {
		t.Fatal("consumed token must not pass twice")
	}
	if _, fresh := again["token"]; !fresh {
		t.Fatalf("want a fresh token, got %v", again)
	}
}

func TestPublicChallengePageForBrowsers(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ts := httptest.NewServer(srv.PublicRouter())
	t.Cleanup(ts.Close)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/tokens/challenge?redirect=/shop/cart", nil)
	req.Header.Set("Accept", "text/html")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Fatalf("want html, got %q", ct)
	}
	if !strings.Contains(string(body), "Checking your browser") {
		t.Fatalf("unexpected page: %q", body)
	}
	if !strings.Contains(string(body), "/shop/cart") {
		t.Fatal("page should refresh back to the requested path")
	}

	// absolute redirect targets are ignored
	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/api/tokens/challenge?redirect=https://evil.example/", nil)
	req.Header.Set("Accept", "text/html")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.Contains(string(body), "evil.example") {
		t.Fatal("absolute redirect target leaked into the page")
	}
}

func TestPublicHealthzAndSummary(t *testing.T) {
	srv, store := newTestServer(t, nil)
	ts := httptest.NewServer(srv.PublicRouter())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz: want 200 ok, got %d %q", resp.StatusCode, body)
	}

	err = store.AddBucket(context.Background(), domain.StatsRow{
		Minute: time.Now().Truncate(time.Minute), Total: 10, Allowed: 6, Denied: 4,
	})
	if err != nil {
		t.Fatalf("add bucket: %v", err)
	}

	resp, err = http.Get(ts.URL + "/api/analytics/summary")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	var sum domain.Summary
	decodeBody(t, resp, &sum)
	if sum.Total != 10 || sum.Denied != 4 || sum.WindowHours != 24 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	resp, err = http.Get(ts.URL + "/api/analytics/summary?hours=abc")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad hours: want 400, got %d", resp.StatusCode)
	}
}

func TestPublicTokenEndpointUsesJSONByDefault(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ts := httptest.NewServer(srv.PublicRouter())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/tokens/challenge")
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("want json for non-browser clients, got %q", ct)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !hexToken.MatchString(payload["token"]) {
		t.Fatalf("bad token %q", payload["token"])
	}
}
