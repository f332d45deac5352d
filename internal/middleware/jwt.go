package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/livesession-backend/internal/response"
	"github.com/stemsi/livesession-backend/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"
)

var errNoToken = errors.New("authorization header or token query required")

// TokenValidator is implemented by service.AuthService.
type TokenValidator interface {
	ValidateToken(tokenStr string) (*service.Claims, error)
}

// RequireHostJWT admits only host tokens.
func RequireHostJWT(auth TokenValidator) gin.HandlerFunc {
	return RequireTokenType(auth, response.ErrHostOnly, service.TokenTypeHost)
}

// RequireParticipantJWT admits only participant tokens, read from the
// Authorization header or the ?token= query for EventSource and WebSocket
// clients that cannot send headers.
func RequireParticipantJWT(auth TokenValidator) gin.HandlerFunc {
	return RequireTokenType(auth, response.ErrParticipantOnly, service.TokenTypeParticipant)
}

// RequireTokenType admits any of the given token types.
func RequireTokenType(auth TokenValidator, denied response.ErrCode, types ...service.TokenType) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := extractAndValidateClaims(c, auth)
		if err != nil {
			abortAuth(c, err)
			return
		}

		for _, t := range types {
			if claims.TokenType == t {
				c.Set(ContextKeyClaims, claims)
				c.Next()
				return
			}
		}
		response.AbortFail(c, http.StatusForbidden, denied)
	}
}

// OptionalStudentJWT attaches student claims when a valid student token is
// present. Requests without a token continue as guests; an invalid or
// non-student token is rejected rather than silently downgraded.
func OptionalStudentJWT(auth TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := extractAndValidateClaims(c, auth)
		if errors.Is(err, errNoToken) {
			c.Next()
			return
		}
		if err != nil {
			abortAuth(c, err)
			return
		}
		if claims.TokenType != service.TokenTypeStudent {
			response.AbortFail(c, http.StatusForbidden, response.ErrForbidden)
			return
		}
		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

// GetParticipantID returns the caller's participant id from a participant
// token.
func GetParticipantID(c *gin.Context) (uuid.UUID, bool) {
	claims := GetClaims(c)
	if claims == nil || claims.TokenType != service.TokenTypeParticipant {
		return uuid.Nil, false
	}
	id, err := claims.Participant()
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func abortAuth(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errNoToken):
		response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
	case errors.Is(err, jwt.ErrTokenExpired):
		response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenExpired)
	default:
		response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
	}
}

func extractAndValidateClaims(c *gin.Context, auth TokenValidator) (*service.Claims, error) {
	tokenStr := ""

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			tokenStr = strings.TrimSpace(parts[1])
		}
	}

	// Fallback for EventSource (SSE) and WebSocket which cannot send headers
	if tokenStr == "" {
		tokenStr = c.Query("token")
	}

	if tokenStr == "" {
		return nil, errNoToken
	}

	return auth.ValidateToken(tokenStr)
}
