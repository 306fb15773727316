package domain

import "time"

// TrafficLog records one rate-limit decision.
type TrafficLog struct {
	ID            int64     `json:"id"`
	At            time.Time `json:"at"`
	ClientKey     string    `json:"client_key"`
	Path          string    `json:"path"`
	Method        string    `json:"method"`
	Allowed       bool      `json:"allowed"`
	MatchedBy     string    `json:"matched_by"` // "rule:<id>", "policy:<id>" or "none"
	LatencyMicros int64     `json:"latency_micros"`
}

// StatsRow is one per-minute aggregation bucket.
type StatsRow struct {
	Minute  time.Time `json:"minute"`
	Total   int64     `json:"total"`
	Allowed int64     `json:"allowed"`
	Denied  int64     `json:"denied"`
}

// Summary aggregates StatsRows over a trailing window.
type Summary struct {
	WindowHours int     `json:"window_hours"`
	Total       int64   `json:"total"`
	Allowed     int64   `json:"allowed"`
	Denied      int64   `json:"denied"`
	DenyRate    float64 `json:"deny_rate"`
}

func (s *Summary) ComputeRate() {
	if s.Total > 0 {
		s.DenyRate = float64(s.Denied) / float64(s.Total)
	}
}
