package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	authdomain "github.com/reelcomic/reelcomic/internal/auth/domain"
	"go.uber.org/zap"
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.authsvc.Register(c.Request.Context(), authdomain.RegisterRequest{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		UserAgent:   c.Request.UserAgent(),
		IPAddress:   c.ClientIP(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.sessions.Set(c, result.Grant.RawToken, result.Grant.ExpiresAt)
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": result.User.View()})
}

func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.authsvc.Login(c.Request.Context(), authdomain.LoginRequest{
		Email:     req.Email,
		Password:  req.Password,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		s.metrics.ObserveLogin("password", "failure")
		AbortWithError(c, err)
		return
	}

	s.metrics.ObserveLogin("password", "success")
	s.sessions.Set(c, result.Grant.RawToken, result.Grant.ExpiresAt)
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": result.User.View()})
}

// Session reports the authenticated user behind the cookie. It never fails:
// any problem reads as an anonymous visitor so the frontend can render the
// logged-out state without special-casing errors.
func (s *Server) Session(c *gin.Context) {
	token, ok := s.sessions.ReadToken(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"authenticated": false, "user": nil})
		return
	}

	user, _, err := s.authsvc.Authenticate(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"authenticated": false, "user": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"authenticated": true, "user": user.View()})
}

func (s *Server) Logout(c *gin.Context) {
	if token, ok := s.sessions.ReadToken(c); ok {
		if err := s.authsvc.Logout(c.Request.Context(), token); err != nil {
			// The cookie is cleared either way; a missing session row is
			// already the end state logout wants.
			s.log.Debug("logout revoke failed", zap.Error(err))
		}
	}

	s.sessions.Clear(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
