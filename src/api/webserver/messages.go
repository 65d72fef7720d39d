package webserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meridian-apps/casecomms/src/api/audit"
	"github.com/meridian-apps/casecomms/src/api/gateway"
	"github.com/meridian-apps/casecomms/src/api/store"
)

type Messages struct {
	store *store.Service
	hub   *gateway.Hub
	audit audit.Recorder
}

func NewMessages(st *store.Service, hub *gateway.Hub, rec audit.Recorder) Messages {
	return Messages{store: st, hub: hub, audit: rec}
}

func (m Messages) Create(c *gin.Context) {
	channelID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "bad channel id"})
		return
	}
	var req struct {
		Body string `json:"body" binding:"required,min=1,max=10000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	uid := callerID(c)
	msg, err := m.store.Send(c.Request.Context(), channelID, uid, req.Body)
	if err != nil {
		writeError(c, err)
		return
	}

	resolved := m.store.Resolve(c.Request.Context(), msg, nil)
	m.hub.BroadcastMessage(channelID, resolved)
	m.audit.Record(c.Request.Context(), audit.Event{
		Action: "message.send", ActorID: uid,
		Object: strconv.FormatUint(msg.ID, 10),
		Detail: map[string]any{"channel": channelID},
	})
	c.JSON(http.StatusCreated, resolved)
}

func (m Messages) List(c *gin.Context) {
	channelID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "bad channel id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	msgs, err := m.store.List(c.Request.Context(), channelID, callerID(c), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
