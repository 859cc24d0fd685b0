package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jdships/yodoo-rebuild/pkg/jwt"
	"github.com/jdships/yodoo-rebuild/pkg/log"
	"github.com/jdships/yodoo-rebuild/pkg/response"
)

const (
	UserIDKey     = "user_id"
	EmailKey      = "email"
	ClaimsKey     = "claims"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// TokenValidator validates a session token.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// AuthMiddleware validates session tokens issued by the auth provider.
type AuthMiddleware struct {
	validator  TokenValidator
	cookieName string
	public     []string
}

// NewAuthMiddleware creates a new auth middleware. Requests whose path
// starts with one of publicPrefixes pass without a session.
func NewAuthMiddleware(validator TokenValidator, cookieName string, publicPrefixes ...string) *AuthMiddleware {
	return &AuthMiddleware{
		validator:  validator,
		cookieName: cookieName,
		public:     publicPrefixes,
	}
}

// RequireAuth returns a Gin middleware that validates the session token
// from the Authorization header or the session cookie.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.isPublic(c.Request.URL.Path) {
			// Attach the session when present so public handlers can use it.
			if claims, err := m.authenticate(c); err == nil {
				setClaims(c, claims)
			}
			c.Next()
			return
		}

		claims, err := m.authenticate(c)
		if err != nil {
			l := log.Ctx(c.Request.Context())
			l.Debug().Err(err).Msg("rejecting unauthenticated request")
			response.Unauthorized(c, "Unauthorized")
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

var errNoToken = errors.New("no session token")

func (m *AuthMiddleware) authenticate(c *gin.Context) (*jwt.Claims, error) {
	token := ""
	if h := c.GetHeader(AuthHeaderKey); strings.HasPrefix(h, BearerPrefix) {
		token = strings.TrimPrefix(h, BearerPrefix)
	} else if m.cookieName != "" {
		if v, err := c.Cookie(m.cookieName); err == nil {
			token = v
		}
	}
	if token == "" {
		return nil, errNoToken
	}
	return m.validator.ValidateToken(token)
}

func (m *AuthMiddleware) isPublic(path string) bool {
	for _, p := range m.public {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func setClaims(c *gin.Context, claims *jwt.Claims) {
	c.Set(UserIDKey, claims.UserID())
	c.Set(EmailKey, claims.Email)
	c.Set(ClaimsKey, claims)
}

// GetUserID extracts user ID from Gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// GetEmail extracts email from Gin context.
func GetEmail(c *gin.Context) string {
	return c.GetString(EmailKey)
}

// GetClaims extracts the session claims from Gin context.
func GetClaims(c *gin.Context) *jwt.Claims {
	if v, ok := c.Get(ClaimsKey); ok {
		if claims, ok := v.(*jwt.Claims); ok {
			return claims
		}
	}
	return nil
}

// IsAuthenticated reports whether the request carried a valid session.
func IsAuthenticated(c *gin.Context) bool {
	return GetUserID(c) != ""
}

