package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	authdomain "github.com/reelcomic/reelcomic/internal/auth/domain"
	"github.com/reelcomic/reelcomic/internal/auth/oauth"
	"github.com/reelcomic/reelcomic/internal/auth/session"
	"go.uber.org/zap"
)

// OAuthStart begins the authorization-code flow: mint a state token, pin it
// in a cookie alongside the requested post-login path, and send the browser
// to the provider.
func (s *Server) OAuthStart(c *gin.Context) {
	provider := c.Param("provider")
	if !s.oauthsvc.Enabled(provider) {
		AbortWithError(c, ErrNotFound)
		return
	}

	state, err := oauth.NewState()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.sessions.SetState(c, provider, state, c.Query("next"))

	authURL, err := s.oauthsvc.AuthCodeURL(provider, state)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Redirect(http.StatusFound, authURL)
}

// OAuthCallback finishes the flow. Every failure redirects back into the
// frontend with an error tag instead of rendering a bare API error, since
// the browser is mid-navigation here. Apple delivers the callback as a
// form_post, so code and state are read from either query or form body.
func (s *Server) OAuthCallback(c *gin.Context) {
	provider := c.Param("provider")

	code := c.Request.FormValue("code")
	state := c.Request.FormValue("state")

	nextPath, ok := s.sessions.ConsumeState(c, provider, state)
	if !ok || code == "" || !s.oauthsvc.Enabled(provider) {
		s.oauthFailure(c, provider, "state")
		return
	}

	identity, err := s.oauthsvc.Exchange(c.Request.Context(), provider, code)
	if err != nil {
		s.log.Warn("oauth exchange failed", zap.String("provider", provider), zap.Error(err))
		s.oauthFailure(c, provider, "callback")
		return
	}

	user, err := s.authsvc.FindOrCreateOAuthUser(c.Request.Context(), authdomain.OAuthUserRequest{
		Provider:       identity.Provider,
		Subject:        identity.Subject,
		Email:          identity.Email,
		DisplayName:    identity.DisplayName,
		AvatarURL:      identity.AvatarURL,
		AccessToken:    identity.AccessToken,
		RefreshToken:   identity.RefreshToken,
		TokenExpiresAt: identity.TokenExpiresAt,
	})
	if err != nil {
		s.log.Error("oauth user resolution failed", zap.String("provider", provider), zap.Error(err))
		s.oauthFailure(c, provider, "callback")
		return
	}

	grant, err := s.authsvc.IssueSession(c.Request.Context(), user.ID, authdomain.SessionMeta{
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		s.log.Error("oauth session issue failed", zap.String("provider", provider), zap.Error(err))
		s.oauthFailure(c, provider, "callback")
		return
	}

	s.metrics.ObserveLogin(provider, "success")
	s.sessions.Set(c, grant.RawToken, grant.ExpiresAt)
	c.Redirect(http.StatusFound, session.BuildHashRedirect(c, s.cfg.AppBaseURL, nextPath))
}

func (s *Server) oauthFailure(c *gin.Context, provider, stage string) {
	s.metrics.ObserveLogin(provider, "failure")
	target := session.BuildHashRedirect(c, s.cfg.AppBaseURL, "/auth?error="+provider+"_"+stage)
	c.Redirect(http.StatusFound, target)
}
