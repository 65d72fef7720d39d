package webserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meridian-apps/casecomms/src/api/apperr"
)

// writeError maps the core taxonomy onto HTTP statuses. Anything unmapped is
// a 500 with a generic body; internals never leak storage errors to clients.
func writeError(c *gin.Context, err error) {
	switch {
	case apperr.IsInvalidRequest(err):
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
	case apperr.IsUnauthenticated(err):
		c.JSON(http.StatusUnauthorized, gin.H{"err": "unauthenticated"})
	case apperr.IsAccessDenied(err):
		c.JSON(http.StatusForbidden, gin.H{"err": err.Error()})
	case apperr.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"err": "not found"})
	case apperr.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"err": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"err": "internal error"})
	}
}
