package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jdships/yodoo-rebuild/pkg/log"
	"github.com/jdships/yodoo-rebuild/pkg/response"
)

const (
	CSRFCookieName = "csrf_token"
	CSRFHeaderName = "x-csrf-token"
)

// CSRF issues and verifies double-submit tokens of the form
// "<raw>:<hex sha256(raw + secret)>".
type CSRF struct {
	secret []byte
	exempt []string
	secure bool
}

// NewCSRF creates a CSRF guard. exemptPrefixes match a path exactly or as
// a parent segment, so "/api/chat" exempts "/api/chat/x" but not "/api/chats".
func NewCSRF(secret string, secureCookie bool, exemptPrefixes ...string) *CSRF {
	return &CSRF{
		secret: []byte(secret),
		exempt: exemptPrefixes,
		secure: secureCookie,
	}
}

// Generate returns a fresh signed token.
func (g *CSRF) Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	raw := hex.EncodeToString(buf)
	return raw + ":" + g.sign(raw), nil
}

// Validate reports whether token carries a valid signature.
func (g *CSRF) Validate(token string) bool {
	raw, sig, ok := strings.Cut(token, ":")
	if !ok || raw == "" || sig == "" {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(g.sign(raw)))
}

func (g *CSRF) sign(raw string) string {
	sum := sha256.Sum256(append([]byte(raw), g.secret...))
	return hex.EncodeToString(sum[:])
}

// IssueCookie sets the CSRF cookie. It is readable from JavaScript so the
// client can echo it in the header.
func (g *CSRF) IssueCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CSRFCookieName, token, 0, "/", "", g.secure, false)
}

// Protect rejects POST, PUT and DELETE requests without a matching cookie
// and header pair.
func (g *CSRF) Protect() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case "POST", "PUT", "DELETE":
		default:
			c.Next()
			return
		}
		if g.isExempt(c.Request.URL.Path) {
			c.Next()
			return
		}

		cookie, _ := c.Cookie(CSRFCookieName)
		header := c.GetHeader(CSRFHeaderName)
		if decoded, err := url.QueryUnescape(header); err == nil {
			header = decoded
		}

		if cookie == "" || header == "" || !g.Validate(header) || !hmac.Equal([]byte(cookie), []byte(header)) {
			l := log.Ctx(c.Request.Context())
			l.Warn().Bool("has_cookie", cookie != "").Bool("has_header", header != "").Msg("csrf check failed")
			response.Forbidden(c, "Invalid CSRF token")
			return
		}
		c.Next()
	}
}

func (g *CSRF) isExempt(path string) bool {
	for _, p := range g.exempt {
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}
