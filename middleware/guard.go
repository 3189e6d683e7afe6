package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/authflow/jwt"
	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is passed to the reject function when no bearer token was sent.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken is passed for tokens that fail verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is passed for well-formed tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")
)

const claimsKey = "authflow.claims"

// RejectFunc renders a rejected request. It must abort c.
type RejectFunc func(c *gin.Context, err error)

// ClaimsFromContext returns the claims stored by RequireBearer.
func ClaimsFromContext(c *gin.Context) (*jwt.AccessClaims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*jwt.AccessClaims)
	return claims, ok
}

// RequireBearer rejects requests without a valid access token. A nil reject
// answers 401 with a plain JSON error.
func RequireBearer(manager *jwt.Manager, reject RejectFunc) gin.HandlerFunc {
	if reject == nil {
		reject = func(c *gin.Context, err error) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		}
	}
	return func(c *gin.Context) {
		if manager == nil {
			reject(c, ErrInvalidToken)
			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			reject(c, ErrMissingToken)
			return
		}

		claims, err := manager.ParseAccess(token)
		if err != nil {
			if errors.Is(err, gojwt.ErrTokenExpired) {
				reject(c, ErrTokenExpired)
				return
			}
			reject(c, ErrInvalidToken)
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

func bearerToken(value string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(value), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}
