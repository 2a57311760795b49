package middleware

import (
	"crypto/subtle"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/tablecache/tablecache/api"
	config "github.com/tablecache/tablecache/configs"
)

var ErrUnauthorized = fmt.Errorf("invalid username or password")

// Authorization checks HTTP basic credentials against auth. A nil auth lets
// every request through.
func Authorization(auth *config.BasicAuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth == nil {
			c.Next()
			return
		}
		username, password, ok := c.Request.BasicAuth()
		if !ok || !validateCredentials(auth, username, password) {
			log.Debug().Str("ip", c.ClientIP()).Msg(ErrUnauthorized.Error())
			api.UnauthorizedErrorHandler(c, ErrUnauthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}

func validateCredentials(auth *config.BasicAuthConfig, username, password string) bool {
	userOk := subtle.ConstantTimeCompare([]byte(username), []byte(auth.Username)) == 1
	passOk := subtle.ConstantTimeCompare([]byte(password), []byte(auth.Password)) == 1
	return userOk && passOk
}
