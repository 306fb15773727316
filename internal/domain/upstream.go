package domain

import "time"

type UpstreamID string

// Upstream is one proxied backend watched by the health rechecker.
type Upstream struct {
	ID        UpstreamID `json:"id"`
	BaseURL   string     `json:"base_url"`
	CreatedAt time.Time  `json:"created_at"`
}

type UpstreamCheck struct {
	UpstreamID UpstreamID `json:"upstream_id"`
	BaseURL    string     `json:"base_url"`
	Up         bool       `json:"up"`
	HTTPStatus int        `json:"http_status,omitempty"`
	LatencyMS  float64    `json:"latency_ms"`
	Reason     string     `json:"reason,omitempty"`
	CheckedAt  time.Time  `json:"checked_at"`
}
