// Package session manages the browser-facing cookies: the bearer session
// cookie and the short-lived per-provider OAuth state cookies.
package session

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/reelcomic/reelcomic/internal/config"
)

const (
	CookieName = "reelcomic_session"

	stateCookiePrefix = "reelcomic_oauth_state_"
	stateCookieTTL    = 10 * time.Minute
)

// SessionTTL is the fixed lifetime of an issued session.
const SessionTTL = 30 * 24 * time.Hour

// Manager manages auth cookies.
type Manager struct {
	secure bool
}

func NewManager(cfg config.Config) *Manager {
	return &Manager{secure: cfg.AuthCookieSecure}
}

// secureFor trusts a reverse proxy terminating TLS via X-Forwarded-Proto.
func (m *Manager) secureFor(c *gin.Context) bool {
	if m.secure {
		return true
	}
	if c.Request.TLS != nil {
		return true
	}
	return strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https")
}

func (m *Manager) ReadToken(c *gin.Context) (string, bool) {
	token, err := c.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	if strings.TrimSpace(token) == "" {
		return "", false
	}
	return token, true
}

func (m *Manager) Set(c *gin.Context, value string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, value, maxAge, "/", "", m.secureFor(c), true)
}

func (m *Manager) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, "", -1, "/", "", m.secureFor(c), true)
}

// SetState stores the anti-forgery state for one OAuth attempt, paired with
// the sanitized post-login path. Cookie-held so the guard is stateless across
// instances.
func (m *Manager) SetState(c *gin.Context, provider, state, nextPath string) {
	value := state + "|" + url.QueryEscape(SanitizeNextPath(nextPath))
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookiePrefix+provider, value, int(stateCookieTTL.Seconds()), "/", "", m.secureFor(c), true)
}

// ConsumeState reads and unconditionally clears the provider's state cookie,
// then compares it to the state echoed by the provider. All failure modes
// (no cookie, no echoed state, mismatch) report uniformly as not ok.
func (m *Manager) ConsumeState(c *gin.Context, provider, receivedState string) (nextPath string, ok bool) {
	raw, err := c.Cookie(stateCookiePrefix + provider)

	// Single use, regardless of outcome.
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookiePrefix+provider, "", -1, "/", "", m.secureFor(c), true)

	if err != nil || raw == "" || receivedState == "" {
		return DefaultNextPath, false
	}

	saved, encodedNext, _ := strings.Cut(raw, "|")
	if saved == "" || saved != receivedState {
		return DefaultNextPath, false
	}

	next, err := url.QueryUnescape(encodedNext)
	if err != nil {
		next = ""
	}
	return SanitizeNextPath(next), true
}
