package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// SecurityHeaders sets the Content-Security-Policy and related headers.
// connectSrc lists extra origins the browser may call (model providers,
// the auth provider).
func SecurityHeaders(connectSrc []string) gin.HandlerFunc {
	csp := strings.Join([]string{
		"default-src 'self'",
		"script-src 'self' 'unsafe-inline'",
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data: https: blob:",
		"connect-src " + strings.TrimSpace("'self' wss: "+strings.Join(connectSrc, " ")),
	}, "; ") + ";"

	return func(c *gin.Context) {
		c.Header("Content-Security-Policy", csp)
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}
