package probe

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Header is one response header line. Arrival order and duplicate names are
// preserved, which http.Header cannot do across keys.
type Header struct {
	Name  string
	Value string
}

// Exchange is one completed GET round trip.
type Exchange struct {
	StatusCode int
	Proto      string
	Headers    []Header
	Body       []byte
}

// ContentType returns the first Content-Type value, or "" when absent.
func (e *Exchange) ContentType() string {
	return headerValue(e.Headers, "Content-Type")
}

// Fetcher performs diagnostic GETs over a raw connection so the response
// head can be re-parsed into ordered headers.
type Fetcher struct {
	Timeout time.Duration
}

func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{Timeout: timeout}
}

// Fetch issues a single GET against rawURL. The timeout bounds the whole
// exchange: dial, TLS handshake, request write and response read. Any
// failure to obtain a complete response comes back as the error arm;
// a non-2xx status is still a successful exchange.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Exchange, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(u.Hostname(), port))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, err
		}
	}

	rw := io.ReadWriter(conn)
	if u.Scheme == "https" {
		tc := tls.Client(conn, &tls.Config{ServerName: u.Hostname()})
		if err := tc.HandshakeContext(ctx); err != nil {
			return nil, err
		}
		rw = tc
	}

	var req bytes.Buffer
	fmt.Fprintf(&req, "GET %s HTTP/1.1\r\n", u.RequestURI())
	fmt.Fprintf(&req, "Host: %s\r\n", u.Host)
	req.WriteString("User-Agent: rategate-routecheck\r\n")
	req.WriteString("Accept: */*\r\n")
	req.WriteString("Accept-Encoding: gzip\r\n")
	req.WriteString("Connection: close\r\n\r\n")
	if _, err := rw.Write(req.Bytes()); err != nil {
		return nil, err
	}

	// Tee everything the reader consumes so the head block can be re-parsed
	// in arrival order; ReadResponse handles status line and body framing.
	var raw bytes.Buffer
	br := bufio.NewReader(io.TeeReader(rw, &raw))
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	headers := parseHeaderBlock(raw.Bytes())
	if strings.EqualFold(headerValue(headers, "Content-Encoding"), "gzip") {
		body, err = gunzip(body)
		if err != nil {
			return nil, fmt.Errorf("decode gzip body: %w", err)
		}
	}

	return &Exchange{
		StatusCode: resp.StatusCode,
		Proto:      resp.Proto,
		Headers:    headers,
		Body:       body,
	}, nil
}

// parseHeaderBlock re-reads the captured head bytes into ordered name/value
// pairs. Folded continuation lines extend the previous value.
func parseHeaderBlock(raw []byte) []Header {
	end := bytes.Index(raw, []byte("\r\n\r\n"))
	if end < 0 {
		end = len(raw)
	}
	lines := bytes.Split(raw[:end], []byte("\r\n"))

	var hs []Header
	for i, ln := range lines {
		if i == 0 || len(ln) == 0 {
			continue // status line
		}
		if ln[0] == ' ' || ln[0] == '\t' {
			if n := len(hs); n > 0 {
				hs[n-1].Value += " " + string(bytes.TrimSpace(ln))
			}
			continue
		}
		name, value, ok := bytes.Cut(ln, []byte(":"))
		if !ok {
			continue
		}
		hs = append(hs, Header{Name: string(name), Value: string(bytes.TrimSpace(value))})
	}
	return hs
}

func headerValue(hs []Header, name string) string {
	for _, h := range hs {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func gunzip(b []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
