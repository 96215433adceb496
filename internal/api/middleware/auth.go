// server/internal/api/middleware/auth.go
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"relief-dispatch-api-server/internal/auth"
	"relief-dispatch-api-server/internal/logger"
	"relief-dispatch-api-server/internal/models"

	"github.com/gin-gonic/gin"
)

// Context keys set by the middlewares below.
const (
	KeyUserID    = "user_id"
	KeyUserName  = "user_name"
	KeyUserEmail = "user_email"
	KeyUserRole  = "user_role"
	KeyDevice    = "device"
)

// DeviceTokenHeader carries a device token when Authorization is taken.
const DeviceTokenHeader = "X-Device-Token"

func bearer(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if authHeader == "" || tokenString == authHeader {
		return "", false
	}
	return tokenString, true
}

// Authenticate validates a staff JWT and puts the user into the context.
func Authenticate(issuer *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			return
		}
		tokenString, ok := bearer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			return
		}

		claims, err := issuer.ParseJWT(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(KeyUserID, claims.Subject)
		c.Set(KeyUserName, claims.Name)
		c.Set(KeyUserEmail, claims.Email)
		c.Set(KeyUserRole, claims.Role)
		c.Next()
	}
}

// Authorize lets the request through only for the given roles. Must run after Authenticate.
func Authorize(allowedRoles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole := c.GetString(KeyUserRole)
		if userRole == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "User role not found in context"})
			return
		}
		for _, role := range allowedRoles {
			if string(role) == userRole {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have permission to access this resource"})
	}
}

// RequireDevice validates a requester device token (X-Device-Token or
// Authorization: Bearer) and puts the requester into the context.
func RequireDevice(issuer *auth.Issuer, requesters auth.RequesterGetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.GetHeader(DeviceTokenHeader)
		if tokenString == "" {
			tokenString, _ = bearer(c)
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Device token is required"})
			return
		}

		requester, err := issuer.VerifyDevice(c.Request.Context(), tokenString, requesters)
		if errors.Is(err, models.ErrNotAuthorized) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or revoked device token"})
			return
		}
		if err != nil {
			logger.L().Error("device_lookup_failed", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify device"})
			return
		}
		c.Set(KeyDevice, requester)
		c.Next()
	}
}

// CurrentVolunteer is the dispatch identity of the authenticated staff user.
func CurrentVolunteer(c *gin.Context) models.Volunteer {
	return models.Volunteer{ID: c.GetString(KeyUserID), Name: c.GetString(KeyUserName)}
}

func CurrentRole(c *gin.Context) models.Role {
	return models.Role(c.GetString(KeyUserRole))
}

// CurrentDevice returns the requester set by RequireDevice, or nil.
func CurrentDevice(c *gin.Context) *models.Requester {
	v, ok := c.Get(KeyDevice)
	if !ok {
		return nil
	}
	r, _ := v.(*models.Requester)
	return r
}
