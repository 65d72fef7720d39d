package webserver

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/meridian-apps/casecomms/src/api/audit"
	"github.com/meridian-apps/casecomms/src/api/config"
	"github.com/meridian-apps/casecomms/src/api/directory"
	"github.com/meridian-apps/casecomms/src/api/gateway"
	"github.com/meridian-apps/casecomms/src/api/identity"
	"github.com/meridian-apps/casecomms/src/api/store"
	"github.com/meridian-apps/casecomms/src/api/workflow"
)

type Deps struct {
	Cfg      config.Config
	DB       *gorm.DB
	RDB      *redis.Client
	Verifier *identity.JWT
	Dir      *directory.Service
	Workflow *workflow.Service
	Store    *store.Service
	Hub      *gateway.Hub
	Audit    audit.Recorder
	Log      *zap.SugaredLogger
}

func New(deps Deps) *gin.Engine {
	g := gin.New()
	g.Use(gin.Logger(), gin.Recovery())
	attachRoutes(g, deps)
	return g
}
