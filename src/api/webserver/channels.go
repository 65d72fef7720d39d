package webserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meridian-apps/casecomms/src/api/audit"
	"github.com/meridian-apps/casecomms/src/api/directory"
	"github.com/meridian-apps/casecomms/src/api/types"
)

type Channels struct {
	dir   *directory.Service
	audit audit.Recorder
}

func NewChannels(dir *directory.Service, rec audit.Recorder) Channels {
	return Channels{dir: dir, audit: rec}
}

func (h Channels) List(c *gin.Context) {
	channels, err := h.dir.ListForUser(c.Request.Context(), callerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

func (h Channels) Create(c *gin.Context) {
	var req struct {
		Name         string   `json:"name" binding:"max=128"`
		Variant      string   `json:"variant" binding:"required,oneof=broadcast role team group direct"`
		TargetRoleID *uint64  `json:"targetRoleId"`
		TargetTeamID *uint64  `json:"targetTeamId"`
		MemberIDs    []uint64 `json:"memberIds"`
		PeerID       uint64   `json:"peerId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	uid := callerID(c)
	spec := directory.CreateSpec{
		Name:         req.Name,
		Variant:      types.ChannelVariant(req.Variant),
		TargetRoleID: req.TargetRoleID,
		TargetTeamID: req.TargetTeamID,
		MemberIDs:    req.MemberIDs,
		PeerID:       req.PeerID,
	}
	ch, err := h.dir.Create(c.Request.Context(), spec, uid, directory.CreateOpts{})
	if err != nil {
		writeError(c, err)
		return
	}

	h.audit.Record(c.Request.Context(), audit.Event{
		Action: "channel.create", ActorID: uid,
		Object: strconv.FormatUint(ch.ID, 10),
		Detail: map[string]any{"variant": string(ch.Variant)},
	})
	c.JSON(http.StatusCreated, ch)
}

func (h Channels) Get(c *gin.Context) {
	channelID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "bad channel id"})
		return
	}
	ch, err := h.dir.Get(c.Request.Context(), channelID, callerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}
