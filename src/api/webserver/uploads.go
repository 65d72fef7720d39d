package webserver

import (
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meridian-apps/casecomms/src/api/audit"
	"github.com/meridian-apps/casecomms/src/api/gateway"
	"github.com/meridian-apps/casecomms/src/api/store"
)

type Uploads struct {
	store   *store.Service
	hub     *gateway.Hub
	audit   audit.Recorder
	maxSize int64
}

func NewUploads(st *store.Service, hub *gateway.Hub, rec audit.Recorder, maxSize int64) Uploads {
	return Uploads{store: st, hub: hub, audit: rec, maxSize: maxSize}
}

// Create accepts a multipart form with 1..N "files" parts and an optional
// "caption" field; the whole batch becomes one message.
func (u Uploads) Create(c *gin.Context) {
	channelID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "bad channel id"})
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "multipart form required"})
		return
	}
	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"err": "no files in upload"})
		return
	}

	var uploads []store.Upload
	var opened []io.Closer
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for _, fh := range fileHeaders {
		if fh.Size > u.maxSize {
			c.JSON(http.StatusBadRequest, gin.H{"err": "file too large: " + fh.Filename})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"err": "internal error"})
			return
		}
		opened = append(opened, f)
		uploads = append(uploads, store.Upload{
			FileName: filepath.Base(fh.Filename),
			MimeType: fh.Header.Get("Content-Type"),
			Reader:   f,
		})
	}

	uid := callerID(c)
	caption := c.PostForm("caption")
	msg, atts, err := u.store.SendFiles(c.Request.Context(), channelID, uid, caption, uploads)
	if err != nil {
		writeError(c, err)
		return
	}

	resolved := u.store.Resolve(c.Request.Context(), msg, atts)
	u.hub.BroadcastMessage(channelID, resolved)
	u.audit.Record(c.Request.Context(), audit.Event{
		Action: "message.upload", ActorID: uid,
		Object: strconv.FormatUint(msg.ID, 10),
		Detail: map[string]any{"channel": channelID, "files": len(atts)},
	})
	c.JSON(http.StatusCreated, resolved)
}

// Download streams attachment bytes. Denied access and missing rows are both
// a plain 404 so existence never leaks.
func (u Uploads) Download(c *gin.Context) {
	attachmentID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "bad attachment id"})
		return
	}
	att, rc, err := u.store.OpenAttachment(c.Request.Context(), attachmentID, callerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", `attachment; filename="`+att.FileName+`"`)
	c.DataFromReader(http.StatusOK, att.SizeBytes, att.MimeType, rc, nil)
}
