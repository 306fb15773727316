package antibot

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long a minted token stays redeemable.
	DefaultTTL = 10 * time.Minute

	// HoneypotField is the decoy form field name handed to clients. Real
	// browsers leave it empty; bots that fill every field out themselves.
	HoneypotField = "website"

	// ChallengeCookie carries the token through the challenge redirect.
	ChallengeCookie = "X-Form-Token-Challenge"
)

// TokenStore hands out single-use tokens with a TTL. Memory only; tokens
// are ten-minute ephemera and do not survive a restart.
type TokenStore struct {
	ttl time.Duration

	mu sync.Mutex
	m  map[string]time.Time // token -> expiry
}

func NewTokenStore(ttl time.Duration) *TokenStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TokenStore{ttl: ttl, m: make(map[string]time.Time)}
}

// Mint creates and registers a fresh token, 32 hex characters.
func (s *TokenStore) Mint() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("mint token: %w", err)
	}
	token := hex.EncodeToString(buf)

	s.mu.Lock()
	s.m[token] = time.Now().Add(s.ttl)
	s.mu.Unlock()
	return token, nil
}

// Consume redeems a token. It succeeds at most once per token and never
// for an expired or unknown one.
func (s *TokenStore) Consume(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.m[token]
	if !ok {
		return false
	}
	delete(s.m, token)
	return time.Now().Before(expiry)
}

// Sweep drops expired tokens and reports how many went away.
func (s *TokenStore) Sweep() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for token, expiry := range s.m {
		if now.After(expiry) {
			delete(s.m, token)
			n++
		}
	}
	return n
}

func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func (s *TokenStore) TTL() time.Duration { return s.ttl }

// FormToken is the payload behind the public token endpoint.
type FormToken struct {
	Token         string `json:"token"`
	LoadTime      int64  `json:"loadTime"` // unix milliseconds
	HoneypotField string `json:"honeypotField"`
	ExpiresIn     int    `json:"expiresIn"` // seconds
}

// IssueForm mints a token and wraps it in the form payload.
func (s *TokenStore) IssueForm() (FormToken, error) {
	token, err := s.Mint()
	if err != nil {
		return FormToken{}, err
	}
	return FormToken{
		Token:         token,
		LoadTime:      time.Now().UnixMilli(),
		HoneypotField: HoneypotField,
		ExpiresIn:     int(s.ttl.Seconds()),
	}, nil
}
