package webserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/meridian-apps/casecomms/src/api/identity"
)

// JWTMiddleware verifies the bearer token and re-checks that the user is
// still active before stashing the caller id in the gin context.
func JWTMiddleware(verifier identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		claims, err := verifier.VerifyToken(c.Request.Context(), h[7:])
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		active, err := verifier.IsActiveUser(c.Request.Context(), claims.UserID)
		if err != nil || !active {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Set("uid", claims.UserID)
		c.Next()
	}
}

func callerID(c *gin.Context) uint64 {
	uid, _ := c.Get("uid")
	id, _ := uid.(uint64)
	return id
}
