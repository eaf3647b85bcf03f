package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"anonymous-report-service/database"
	"anonymous-report-service/models"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const adminScopeKey = "admin_scope"

// AdminDirectory looks up the district of an admin account.
type AdminDirectory interface {
	GetAdminDistrict(ctx context.Context, username string) (string, error)
}

// AdminAuthMiddleware accepts HS256 bearer tokens issued to admins and stores
// the caller's scope in the context.
func AdminAuthMiddleware(secret []byte, admins AdminDirectory) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWith(c, http.StatusUnauthorized, "unauthorized", "missing authorization header")
			return
		}

		tokenString := extractToken(authHeader)
		if tokenString == "" {
			abortWith(c, http.StatusUnauthorized, "unauthorized", "invalid authorization format")
			return
		}

		username, err := ValidateAdminToken(secret, tokenString)
		if err != nil {
			abortWith(c, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}

		district, err := admins.GetAdminDistrict(c.Request.Context(), username)
		if errors.Is(err, database.ErrNotFound) {
			abortWith(c, http.StatusForbidden, "forbidden", "admin account not found")
			return
		}
		if err != nil {
			log.Errorf("Failed to load admin %s: %v", username, err)
			abortWith(c, http.StatusInternalServerError, "server_error", "An unexpected error occurred. Please try again later.")
			return
		}

		c.Set(adminScopeKey, models.AdminScope{Username: username, District: district})
		c.Next()
	}
}

// ValidateAdminToken verifies an admin access token and returns the username.
func ValidateAdminToken(secret []byte, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	if tokenType, _ := claims["type"].(string); tokenType == "refresh" {
		return "", errors.New("cannot use refresh token for authentication")
	}
	if role, _ := claims["role"].(string); role != "admin" && role != "super_admin" {
		return "", errors.New("not an admin token")
	}
	username, _ := claims["username"].(string)
	if username == "" {
		return "", errors.New("invalid username in token")
	}
	return username, nil
}

// AdminScope returns the scope stored by AdminAuthMiddleware.
func AdminScope(c *gin.Context) (models.AdminScope, bool) {
	v, ok := c.Get(adminScopeKey)
	if !ok {
		return models.AdminScope{}, false
	}
	scope, ok := v.(models.AdminScope)
	return scope, ok
}

// SetAdminScope stores scope in the context.
func SetAdminScope(c *gin.Context, scope models.AdminScope) {
	c.Set(adminScopeKey, scope)
}

// extractToken extracts the token from the Authorization header
func extractToken(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func abortWith(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{Success: false, Error: code, Message: message})
}

// CORSMiddleware handles CORS headers
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// SecurityHeaders adds security headers to responses
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("Referrer-Policy", "no-referrer")
		c.Writer.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Next()
	}
}
