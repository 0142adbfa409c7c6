package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderAPIKey carries the admin key
const HeaderAPIKey = "X-API-Key"

// ContextKeyName is the gin context key holding the authenticated key name
const ContextKeyName = "auth.key_name"

// RequireAPIKey rejects requests without a valid key. The key is read from
// X-API-Key or an "Authorization: Bearer" header. With an empty keyring
// every request is rejected with 403, so admin routes stay closed until
// keys are configured.
func RequireAPIKey(keyring *Keyring) gin.HandlerFunc {
	return func(c *gin.Context) {
		if keyring == nil || keyring.Len() == 0 {
			abort(c, http.StatusForbidden, "forbidden", "admin API is disabled")
			return
		}

		key, err := keyring.Validate(secretFrom(c.Request))
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			abort(c, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}

		c.Set(ContextKeyName, key.Name)
		c.Next()
	}
}

// KeyName returns the authenticated key name stored by RequireAPIKey
func KeyName(c *gin.Context) (string, bool) {
	value, ok := c.Get(ContextKeyName)
	if !ok {
		return "", false
	}
	name, ok := value.(string)
	return name, ok
}

func secretFrom(r *http.Request) string {
	if secret := r.Header.Get(HeaderAPIKey); secret != "" {
		return secret
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":   code,
		"message": message,
		"code":    status,
	})
}
