package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/poormans/rategate/internal/antibot"
)

// handleTokenForm issues a fresh form token for clients that render forms.
func (s *Server) handleTokenForm(w http.ResponseWriter, _ *http.Request) {
	form, err := s.Tokens.IssueForm()
	if err != nil {
		s.Logger.Error("token_mint_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not mint token")
		return
	}
	writeJSON(w, http.StatusOK, form)
}

// handleTokenChallenge is the browser interstitial. A request carrying a
// valid challenge cookie passes. Anything else gets a fresh token, served
// as an auto-refreshing page for browsers and as plain JSON otherwise.
func (s *Server) handleTokenChallenge(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(antibot.ChallengeCookie); err == nil && s.Tokens.Consume(c.Value) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	token, err := s.Tokens.Mint()
	if err != nil {
		s.Logger.Error("token_mint_error", zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "could not mint token")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     antibot.ChallengeCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.Tokens.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		redirect := r.URL.Query().Get("redirect")
		if !strings.HasPrefix(redirect, "/") {
			// relative paths only, no open redirects
			redirect = "/"
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(antibot.ChallengeHTML(redirect)))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
