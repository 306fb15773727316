package probe

import "context"

// CheckResult holds the outcome of a single upstream check
type CheckResult struct {
	Name       string  `json:"name"`
	Success    bool    `json:"success"`
	Message    string  `json:"message"`
	StatusCode int     `json:"status_code,omitempty"`
	LatencyMS  float64 `json:"latency_ms,omitempty"`
}

// Checker is implemented by any upstream check (HTTP, DNS, TLS, etc.)
type Checker interface {
	Check(ctx context.Context, target string) CheckResult
}
