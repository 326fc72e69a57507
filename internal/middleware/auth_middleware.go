package middleware

import (
	"net/http"
	"strings"

	"guardshift/internal/utils"

	"github.com/gin-gonic/gin"
)

// Context keys set by AuthRequired.
const (
	ContextUserID   = "user_id"
	ContextUserType = "user_type"
	ContextPhone    = "phone"
)

// AuthRequired validates the bearer token and sets the caller in the context
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, utils.CodeInvalidToken, "Authorization header required")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			utils.ErrorResponse(c, http.StatusUnauthorized, utils.CodeInvalidToken, "Bearer token required")
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(tokenString, secret)
		if err != nil {
			utils.ErrorResponse(c, http.StatusUnauthorized, utils.CodeInvalidToken, "Invalid token")
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserType, claims.UserType)
		c.Set(ContextPhone, claims.Phone)

		c.Next()
	}
}

// AdminRequired middleware ensures user is an admin
func AdminRequired() gin.HandlerFunc {
	return requireUserType(utils.UserTypeAdmin, "Admin access required")
}

// PersonnelRequired middleware ensures user is a candidate
func PersonnelRequired() gin.HandlerFunc {
	return requireUserType(utils.UserTypePersonnel, "Personnel access required")
}

func requireUserType(want, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userType, exists := c.Get(ContextUserType)
		if !exists {
			utils.UnauthorizedResponse(c)
			c.Abort()
			return
		}

		userTypeStr, ok := userType.(string)
		if !ok || userTypeStr != want {
			utils.ErrorResponse(c, http.StatusForbidden, utils.CodeForbidden, message)
			c.Abort()
			return
		}

		c.Next()
	}
}

// UserID returns the authenticated caller, or "" outside AuthRequired.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
