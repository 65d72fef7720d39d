package webserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meridian-apps/casecomms/src/api/audit"
	"github.com/meridian-apps/casecomms/src/api/types"
	"github.com/meridian-apps/casecomms/src/api/workflow"
)

type Requests struct {
	wf    *workflow.Service
	audit audit.Recorder
}

func NewRequests(wf *workflow.Service, rec audit.Recorder) Requests {
	return Requests{wf: wf, audit: rec}
}

func (h Requests) Create(c *gin.Context) {
	var req struct {
		ChannelName  string   `json:"channelName" binding:"required,max=128"`
		Variant      string   `json:"variant" binding:"required,oneof=broadcast role team group"`
		TargetRoleID *uint64  `json:"targetRoleId"`
		TargetTeamID *uint64  `json:"targetTeamId"`
		MemberIDs    []uint64 `json:"memberIds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	uid := callerID(c)
	row, err := h.wf.Create(c.Request.Context(), workflow.CreateRequest{
		ChannelName:  req.ChannelName,
		Variant:      types.ChannelVariant(req.Variant),
		TargetRoleID: req.TargetRoleID,
		TargetTeamID: req.TargetTeamID,
		MemberIDs:    req.MemberIDs,
	}, uid)
	if err != nil {
		writeError(c, err)
		return
	}

	h.audit.Record(c.Request.Context(), audit.Event{
		Action: "request.create", ActorID: uid,
		Object: strconv.FormatUint(row.ID, 10),
		Detail: map[string]any{"variant": string(row.Variant)},
	})
	c.JSON(http.StatusCreated, row)
}

func (h Requests) List(c *gin.Context) {
	var filter workflow.ListFilter
	if s := c.Query("state"); s != "" {
		filter.State = &s
	}
	if s := c.Query("requestedBy"); s != "" {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"err": "bad requestedBy"})
			return
		}
		filter.RequestedBy = &id
	}
	rows, err := h.wf.List(c.Request.Context(), callerID(c), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": rows})
}

func (h Requests) Approve(c *gin.Context) {
	requestID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "bad request id"})
		return
	}
	var req struct {
		Notes string `json:"notes" binding:"max=1024"`
	}
	_ = c.ShouldBindJSON(&req) // notes are optional on approval

	uid := callerID(c)
	row, err := h.wf.Approve(c.Request.Context(), requestID, uid, req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}

	h.audit.Record(c.Request.Context(), audit.Event{
		Action: "request.approve", ActorID: uid,
		Object: strconv.FormatUint(row.ID, 10),
	})
	c.JSON(http.StatusOK, row)
}

func (h Requests) Reject(c *gin.Context) {
	requestID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "bad request id"})
		return
	}
	var req struct {
		Notes string `json:"notes" binding:"required,min=1,max=1024"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "review notes are required"})
		return
	}

	uid := callerID(c)
	row, err := h.wf.Reject(c.Request.Context(), requestID, uid, req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}

	h.audit.Record(c.Request.Context(), audit.Event{
		Action: "request.reject", ActorID: uid,
		Object: strconv.FormatUint(row.ID, 10),
	})
	c.JSON(http.StatusOK, row)
}
