package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

// ServiceKey marks a caller that holds the configured service role.
const ServiceKey = "service_caller"

// ServiceRole flags callers whose verified claims carry role. It never rejects;
// handlers that expose other users' data check IsService. Must run after
// AuthMiddleware.
func ServiceRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if role != "" {
			if v, ok := c.Get(ClaimsKey); ok {
				if claims, ok := v.(map[string]interface{}); ok && HasRole(claims, role) {
					c.Set(ServiceKey, true)
				}
			}
		}
		c.Next()
	}
}

// IsService reports whether ServiceRole flagged the caller.
func IsService(c *gin.Context) bool {
	return c.GetBool(ServiceKey)
}

// HasRole looks for role in Keycloak's realm_access.roles and in every
// resource_access.<client>.roles.
func HasRole(claims map[string]interface{}, role string) bool {
	if realm, ok := claims["realm_access"].(map[string]interface{}); ok && containsRole(realm["roles"], role) {
		return true
	}
	clients, _ := claims["resource_access"].(map[string]interface{})
	for _, v := range clients {
		if client, ok := v.(map[string]interface{}); ok && containsRole(client["roles"], role) {
			return true
		}
	}
	return false
}

func containsRole(roles interface{}, role string) bool {
	for _, r := range cast.ToStringSlice(roles) {
		if r == role {
			return true
		}
	}
	return false
}
