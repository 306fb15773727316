package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/poormans/rategate/internal/domain"
)

// ---- policies ----

type policyPayload struct {
	Name              string  `json:"name"`
	LimitType         string  `json:"limit_type"`
	ReplenishRate     float64 `json:"replenish_rate"`
	Burst             float64 `json:"burst"`
	Enabled           *bool   `json:"enabled"`
	Description       string  `json:"description"`
	HeaderName        string  `json:"header_name"`
	SessionCookieName string  `json:"session_cookie_name"`
	TrustProxy        bool    `json:"trust_proxy"`
}

func decodePolicy(r *http.Request) (*domain.Policy, string) {
	var p policyPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		return nil, "bad payload"
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, "name is required"
	}
	lt := domain.LimitType(p.LimitType)
	if p.LimitType == "" {
		lt = domain.LimitIPBased
	}
	if !lt.Valid() {
		return nil, "unknown limit_type"
	}
	enabled := true
	if p.Enabled != nil {
		enabled = *p.Enabled
	}
	pol := &domain.Policy{
		Name:              strings.TrimSpace(p.Name),
		LimitType:         lt,
		ReplenishRate:     p.ReplenishRate,
		Burst:             p.Burst,
		Enabled:           enabled,
		Description:       p.Description,
		HeaderName:        p.HeaderName,
		SessionCookieName: p.SessionCookieName,
		TrustProxy:        p.TrustProxy,
	}
	pol.Normalize()
	return pol, ""
}

func (s *Server) handlePolicyList(w http.ResponseWriter, r *http.Request) {
	policies, err := s.Store.ListPolicies(r.Context())
	if err != nil {
		s.Logger.Error("policy_list_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not list policies")
		return
	}
	if policies == nil {
		policies = []domain.Policy{}
	}
	writeJSON(w, http.StatusOK, policies)
}

func (s *Server) handlePolicyCreate(w http.ResponseWriter, r *http.Request) {
	pol, msg := decodePolicy(r)
	if msg != "" {
		writeErr(w, http.StatusBadRequest, msg)
		return
	}
	if err := s.Store.CreatePolicy(r.Context(), pol); err != nil {
		s.Logger.Error("policy_create_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not create policy")
		return
	}
	s.refreshEngine(r.Context())
	writeJSON(w, http.StatusCreated, pol)
}

func (s *Server) handlePolicyGet(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "bad id")
		return
	}
	pol, err := s.Store.GetPolicy(r.Context(), id)
	if err != nil {
		s.Logger.Error("policy_get_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not load policy")
		return
	}
	if pol == nil {
		writeErr(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, pol)
}

func (s *Server) handlePolicyUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "bad id")
		return
	}
	pol, msg := decodePolicy(r)
	if msg != "" {
		writeErr(w, http.StatusBadRequest, msg)
		return
	}
	pol.ID = id
	ok, err := s.Store.UpdatePolicy(r.Context(), pol)
	if err != nil {
		s.Logger.Error("policy_update_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not update policy")
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "not found")
		return
	}
	s.refreshEngine(r.Context())
	// re-read so the response carries timestamps
	updated, err := s.Store.GetPolicy(r.Context(), id)
	if err != nil || updated == nil {
		writeJSON(w, http.StatusOK, pol)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handlePolicyDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "bad id")
		return
	}
	ok, err := s.Store.DeletePolicy(r.Context(), id)
	if err != nil {
		s.Logger.Error("policy_delete_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not delete policy")
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "not found")
		return
	}
	s.refreshEngine(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// ---- rules ----

type rulePayload struct {
	Name          string `json:"name"`
	PathPattern   string `json:"path_pattern"`
	MaxRequests   int    `json:"max_requests"`
	WindowSeconds int    `json:"window_seconds"`
	Enabled       *bool  `json:"enabled"`
	Priority      *int   `json:"priority"`
	QueueEnabled  bool   `json:"queue_enabled"`
	MaxQueueSize  int    `json:"max_queue_size"`
	DelayPerReqMS int    `json:"delay_per_request_ms"`
}

func decodeRule(r *http.Request) (*domain.Rule, string) {
	var p rulePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		return nil, "bad payload"
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, "name is required"
	}
	if p.PathPattern == "" || (p.PathPattern != "*" && !strings.HasPrefix(p.PathPattern, "/")) {
		return nil, "path_pattern must start with / or be *"
	}
	if p.MaxRequests <= 0 {
		return nil, "max_requests must be positive"
	}
	if p.WindowSeconds <= 0 {
		return nil, "window_seconds must be positive"
	}
	if p.MaxQueueSize < 0 || p.DelayPerReqMS < 0 {
		return nil, "queue settings must not be negative"
	}
	enabled := true
	if p.Enabled != nil {
		enabled = *p.Enabled
	}
	priority := 100
	if p.Priority != nil {
		priority = *p.Priority
	}
	return &domain.Rule{
		Name:          strings.TrimSpace(p.Name),
		PathPattern:   p.PathPattern,
		MaxRequests:   p.MaxRequests,
		WindowSeconds: p.WindowSeconds,
		Enabled:       enabled,
		Priority:      priority,
		QueueEnabled:  p.QueueEnabled,
		MaxQueueSize:  p.MaxQueueSize,
		DelayPerReqMS: p.DelayPerReqMS,
	}, ""
}

func (s *Server) handleRuleList(w http.ResponseWriter, r *http.Request) {
	rules, err := s.Store.ListRules(r.Context())
	if err != nil {
		s.Logger.Error("rule_list_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not list rules")
		return
	}
	if rules == nil {
		rules = []domain.Rule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleRuleActive(w http.ResponseWriter, r *http.Request) {
	rules, err := s.Store.ListActiveRules(r.Context())
	if err != nil {
		s.Logger.Error("rule_active_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not list rules")
		return
	}
	if rules == nil {
		rules = []domain.Rule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleRuleCreate(w http.ResponseWriter, r *http.Request) {
	rule, msg := decodeRule(r)
	if msg != "" {
		writeErr(w, http.StatusBadRequest, msg)
		return
	}
	if err := s.Store.CreateRule(r.Context(), rule); err != nil {
		s.Logger.Error("rule_create_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not create rule")
		return
	}
	s.refreshEngine(r.Context())
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleRuleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "bad id")
		return
	}
	rule, err := s.Store.GetRule(r.Context(), id)
	if err != nil {
		s.Logger.Error("rule_get_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not load rule")
		return
	}
	if rule == nil {
		writeErr(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleRuleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "bad id")
		return
	}
	rule, msg := decodeRule(r)
	if msg != "" {
		writeErr(w, http.StatusBadRequest, msg)
		return
	}
	rule.ID = id
	ok, err := s.Store.UpdateRule(r.Context(), rule)
	if err != nil {
		s.Logger.Error("rule_update_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not update rule")
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "not found")
		return
	}
	s.refreshEngine(r.Context())
	updated, err := s.Store.GetRule(r.Context(), id)
	if err != nil || updated == nil {
		writeJSON(w, http.StatusOK, rule)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type queuePayload struct {
	QueueEnabled  bool `json:"queue_enabled"`
	MaxQueueSize  int  `json:"max_queue_size"`
	DelayPerReqMS int  `json:"delay_per_request_ms"`
}

func (s *Server) handleRuleQueuePatch(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "bad id")
		return
	}
	var p queuePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeErr(w, http.StatusBadRequest, "bad payload")
		return
	}
	if p.MaxQueueSize < 0 || p.DelayPerReqMS < 0 {
		writeErr(w, http.StatusBadRequest, "queue settings must not be negative")
		return
	}
	ok, err := s.Store.UpdateRuleQueue(r.Context(), id, p.QueueEnabled, p.MaxQueueSize, p.DelayPerReqMS)
	if err != nil {
		s.Logger.Error("rule_queue_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not update rule")
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "not found")
		return
	}
	s.refreshEngine(r.Context())
	rule, err := s.Store.GetRule(r.Context(), id)
	if err != nil || rule == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleRuleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "bad id")
		return
	}
	ok, err := s.Store.DeleteRule(r.Context(), id)
	if err != nil {
		s.Logger.Error("rule_delete_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not delete rule")
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "not found")
		return
	}
	s.refreshEngine(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRuleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Refresh(r.Context()); err != nil {
		s.Logger.Error("rule_refresh_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not refresh")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- system config ----

func (s *Server) handleConfigList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Store.AllConfig(r.Context())
	if err != nil {
		s.Logger.Error("config_list_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not list config")
		return
	}
	if entries == nil {
		entries = []domain.ConfigEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleConfigSet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		writeErr(w, http.StatusBadRequest, "bad key")
		return
	}
	var p struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeErr(w, http.StatusBadRequest, "bad payload")
		return
	}
	if err := s.Store.SetConfig(r.Context(), key, p.Value); err != nil {
		s.Logger.Error("config_set_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not set config")
		return
	}
	s.refreshEngine(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": p.Value})
}

// ---- logs and analytics ----

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeErr(w, http.StatusBadRequest, "bad limit")
			return
		}
		limit = n
	}
	logs, err := s.Store.RecentLogs(r.Context(), limit)
	if err != nil {
		s.Logger.Error("logs_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not load logs")
		return
	}
	if logs == nil {
		logs = []domain.TrafficLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func hoursParam(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("hours")
	if raw == "" {
		return 24, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	hours, ok := hoursParam(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "bad hours")
		return
	}
	sum, err := s.Analytics.Summary(r.Context(), time.Now(), hours)
	if err != nil {
		s.Logger.Error("summary_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not summarize")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	hours, ok := hoursParam(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "bad hours")
		return
	}
	rows, err := s.Analytics.Series(r.Context(), time.Now(), hours)
	if err != nil {
		s.Logger.Error("series_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not load series")
		return
	}
	if rows == nil {
		rows = []domain.StatsRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}
