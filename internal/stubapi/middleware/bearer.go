package middleware

import (
	"net/http"
	"strings"

	"kidchat/internal/stubapi/state"

	"github.com/gin-gonic/gin"
)

// AccountKey is the context key for the authenticated state.Account
const AccountKey = "account"

// TokenResolver resolves bearer tokens to accounts
type TokenResolver interface {
	Authenticate(token string) (state.Account, bool)
}

// BearerAuth requires a token issued by a login endpoint.
// On success, sets the account in context for handler use.
func BearerAuth(resolver TokenResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		const bearerPrefix = "Bearer "
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"detail": "Not authenticated",
			})
			return
		}

		account, ok := resolver.Authenticate(strings.TrimPrefix(authHeader, bearerPrefix))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"detail": "Invalid or expired token",
			})
			return
		}

		c.Set(AccountKey, account)
		c.Next()
	}
}

// Account returns the account set by BearerAuth
func Account(c *gin.Context) (state.Account, bool) {
	v, ok := c.Get(AccountKey)
	if !ok {
		return state.Account{}, false
	}
	acc, ok := v.(state.Account)
	return acc, ok
}
