package session

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// DefaultNextPath is where post-login navigation lands when the requested
// path is absent or unsafe.
const DefaultNextPath = "/profile"

// SanitizeNextPath accepts only same-origin absolute paths. A leading "//"
// would be a protocol-relative redirect, so it is rejected too.
func SanitizeNextPath(value string) string {
	if value == "" {
		return DefaultNextPath
	}
	if !strings.HasPrefix(value, "/") || strings.HasPrefix(value, "//") {
		return DefaultNextPath
	}
	return value
}

// RequestOrigin reconstructs the externally visible origin, trusting the
// forwarded headers set by a reverse proxy.
func RequestOrigin(c *gin.Context) string {
	host := c.GetHeader("X-Forwarded-Host")
	if host == "" {
		host = c.Request.Host
	}
	if host == "" {
		host = "localhost:3000"
	}
	proto := c.GetHeader("X-Forwarded-Proto")
	if proto == "" {
		if c.Request.TLS != nil {
			proto = "https"
		} else {
			proto = "http"
		}
	}
	return proto + "://" + host
}

// BaseURL prefers the configured application base URL over the request origin.
func BaseURL(c *gin.Context, configured string) string {
	if configured != "" {
		return strings.TrimRight(configured, "/")
	}
	return RequestOrigin(c)
}

// BuildHashRedirect returns an absolute URL to a hash-routed frontend path.
func BuildHashRedirect(c *gin.Context, configuredBase, nextPath string) string {
	return BaseURL(c, configuredBase) + "/#" + SanitizeNextPath(nextPath)
}
