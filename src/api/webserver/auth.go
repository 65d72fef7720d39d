package webserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/meridian-apps/casecomms/src/api/identity"
	"github.com/meridian-apps/casecomms/src/api/types"
)

// Auth issues tokens against the shared users table. In production the
// platform's SSO issues tokens with the same secret and claims; this endpoint
// exists for development and integration tests.
type Auth struct {
	db       *gorm.DB
	verifier *identity.JWT
	log      *zap.SugaredLogger
}

func NewAuth(db *gorm.DB, verifier *identity.JWT, log *zap.SugaredLogger) Auth {
	return Auth{db: db, verifier: verifier, log: log.With("component", "auth")}
}

func (a Auth) Login(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	var u types.User
	if err := a.db.WithContext(c.Request.Context()).
		First(&u, "email = ? AND active = ?", req.Email, true).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"err": "unknown or inactive user"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"err": "internal error"})
		return
	}

	token, err := a.verifier.Issue(u.ID, u.Email, 24*time.Hour)
	if err != nil {
		a.log.Errorw("token issue failed", "user", u.ID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"err": "internal error"})
		return
	}

	a.log.Infow("login", "user", u.ID, "ip", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"token": token})
}
