package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Onyemech/teemplot-sub006/pkg/response"
)

var (
	ErrMissingAuthHeader = errors.New("missing authorization header")
	ErrInvalidAuthFormat = errors.New("invalid authorization header format")
	ErrInvalidToken      = errors.New("invalid token")
)

// Context keys for user information
const (
	ContextKeyUserID    = "user_id"
	ContextKeyEmail     = "email"
	ContextKeyRole      = "role"
	ContextKeyCompanyID = "company_id"
)

// JWTConfig holds configuration for JWT middleware
type JWTConfig struct {
	// Secret key for validating JWT tokens
	Secret string
	// SkipPaths is a list of paths that should skip JWT validation
	SkipPaths []string
}

// JWTMiddleware creates a new JWT validation middleware
func JWTMiddleware(config *JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, path := range config.SkipPaths {
			if c.Request.URL.Path == path {
				c.Next()
				return
			}
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error("MISSING_TOKEN", "Authorization header is required"))
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error("INVALID_TOKEN", "Invalid authorization header format"))
			return
		}
		tokenString := authHeader[len(bearerPrefix):]

		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error("INVALID_TOKEN", "Token is empty"))
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return []byte(config.Secret), nil
		})
		if err != nil || !token.Valid {
			if errors.Is(err, jwt.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error("TOKEN_EXPIRED", "Token has expired"))
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error("INVALID_TOKEN", "Token validation failed"))
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error("INVALID_TOKEN", "Invalid token claims"))
			return
		}

		if userID, ok := claims["sub"].(string); ok {
			c.Set(ContextKeyUserID, userID)
		}
		if email, ok := claims["email"].(string); ok {
			c.Set(ContextKeyEmail, email)
		}
		if role, ok := claims["role"].(string); ok {
			c.Set(ContextKeyRole, role)
		}
		if companyID, ok := claims["company_id"].(string); ok {
			c.Set(ContextKeyCompanyID, companyID)
		}

		c.Next()
	}
}

// RequireCompany ensures the authenticated caller belongs to the company
// addressed by the :company_id path parameter. All seat accounting is scoped
// per tenant, so cross-company requests are rejected outright.
func RequireCompany() gin.HandlerFunc {
	return func(c *gin.Context) {
		pathCompanyID := c.Param("company_id")
		if pathCompanyID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, response.BadRequest("Company ID is required"))
			return
		}

		claimCompanyID := c.GetString(ContextKeyCompanyID)
		if claimCompanyID == "" || claimCompanyID != pathCompanyID {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Forbidden("Caller does not belong to this company"))
			return
		}

		c.Next()
	}
}

// GenerateToken issues a signed access token for the given user. Used by the
// external auth service in production and by tests here.
func GenerateToken(secret, issuer, userID, email, role, companyID string, ttlSeconds int64) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":        userID,
		"email":      email,
		"role":       role,
		"company_id": companyID,
		"iss":        issuer,
		"iat":        jwt.NewNumericDate(now),
		"exp":        jwt.NewNumericDate(now.Add(time.Duration(ttlSeconds) * time.Second)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
