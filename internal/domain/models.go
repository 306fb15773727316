package domain

import "time"

type LimitType string

const (
	LimitIPBased      LimitType = "IP_BASED"
	LimitUserBased    LimitType = "USER_BASED"
	LimitAPIKey       LimitType = "API_KEY"
	LimitSessionBased LimitType = "SESSION_BASED"
	LimitGlobal       LimitType = "GLOBAL"
)

func (lt LimitType) Valid() bool {
	switch lt {
	case LimitIPBased, LimitUserBased, LimitAPIKey, LimitSessionBased, LimitGlobal:
		return true
	}
	return false
}

const (
	DefaultReplenishRate = 10
	DefaultBurst         = 20
	DefaultSessionCookie = "JSESSIONID"
)

// Policy is a token-bucket limit applied per resolved client key.
type Policy struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	LimitType         LimitType `json:"limit_type"`
	ReplenishRate     float64   `json:"replenish_rate"` // tokens per second
	Burst             float64   `json:"burst"`
	Enabled           bool      `json:"enabled"`
	Description       string    `json:"description,omitempty"`
	HeaderName        string    `json:"header_name,omitempty"`         // USER_BASED / API_KEY
	SessionCookieName string    `json:"session_cookie_name,omitempty"` // SESSION_BASED
	TrustProxy        bool      `json:"trust_proxy"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Normalize fills zero-valued tuning fields with defaults.
func (p *Policy) Normalize() {
	if p.ReplenishRate <= 0 {
		p.ReplenishRate = DefaultReplenishRate
	}
	if p.Burst <= 0 {
		p.Burst = DefaultBurst
	}
	if p.LimitType == LimitSessionBased && p.SessionCookieName == "" {
		p.SessionCookieName = DefaultSessionCookie
	}
}

// Rule is a fixed-window limit matched by path pattern. Lower Priority wins.
type Rule struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	PathPattern   string    `json:"path_pattern"`
	MaxRequests   int       `json:"max_requests"`
	WindowSeconds int       `json:"window_seconds"`
	Enabled       bool      `json:"enabled"`
	Priority      int       `json:"priority"`
	QueueEnabled  bool      `json:"queue_enabled"`
	MaxQueueSize  int       `json:"max_queue_size"`
	DelayPerReqMS int       `json:"delay_per_request_ms"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ConfigEntry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Well-known system_config keys.
const (
	CfgRateLimitingEnabled = "rate_limiting_enabled"
	CfgDefaultPolicyID     = "default_policy_id"
)

// Route maps a public path prefix onto an upstream base URL.
type Route struct {
	Prefix   string `json:"prefix"`
	Upstream string `json:"upstream"`
}
