package server

import (
	"time"

	"github.com/gin-gonic/gin"
	authdomain "github.com/reelcomic/reelcomic/internal/auth/domain"
	"go.uber.org/zap"
)

const contextUserKey = "auth_user"

// RequestLogger emits one structured line per request after it completes.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}

// AuthRequired resolves the session cookie into a user and aborts with 401
// when the cookie is absent, revoked, or expired.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		user, _, err := s.authsvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) (*authdomain.User, bool) {
	val, ok := c.Get(contextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := val.(*authdomain.User)
	return user, ok && user != nil
}
