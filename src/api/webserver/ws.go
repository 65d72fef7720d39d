package webserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/meridian-apps/casecomms/src/api/data"
	"github.com/meridian-apps/casecomms/src/api/gateway"
	"github.com/meridian-apps/casecomms/src/api/identity"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The handshake is authenticated by ticket or token, not by origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WS struct {
	hub      *gateway.Hub
	rdb      *redis.Client
	verifier identity.Verifier
	log      *zap.SugaredLogger
}

func NewWS(hub *gateway.Hub, rdb *redis.Client, verifier identity.Verifier, log *zap.SugaredLogger) WS {
	return WS{hub: hub, rdb: rdb, verifier: verifier, log: log.With("component", "ws")}
}

// Ticket mints a short-lived, single-use handshake ticket for the caller.
// Browser websockets cannot set an Authorization header on the upgrade.
func (w WS) Ticket(c *gin.Context) {
	ticket := uuid.NewString()
	if err := data.SetTicket(c.Request.Context(), w.rdb, ticket, callerID(c)); err != nil {
		w.log.Errorw("ticket store failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"err": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": ticket})
}

// Connect upgrades the connection. Authentication accepts either a redeemed
// ticket or a bearer token in the query string; the user's active status is
// re-checked either way.
func (w WS) Connect(c *gin.Context) {
	var userID uint64

	if ticket := c.Query("ticket"); ticket != "" {
		uid, err := data.RedeemTicket(c.Request.Context(), w.rdb, ticket)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"err": "bad ticket"})
			return
		}
		userID = uid
	} else if token := c.Query("token"); token != "" {
		claims, err := w.verifier.VerifyToken(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"err": "bad token"})
			return
		}
		userID = claims.UserID
	} else {
		c.JSON(http.StatusUnauthorized, gin.H{"err": "ticket or token required"})
		return
	}

	active, err := w.verifier.IsActiveUser(c.Request.Context(), userID)
	if err != nil || !active {
		c.JSON(http.StatusUnauthorized, gin.H{"err": "user is not active"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		w.log.Warnw("websocket upgrade failed", "user", userID, "err", err)
		return
	}

	client := gateway.NewClient(w.hub, conn, userID)
	select {
	case w.hub.Register <- client:
	case <-w.hub.Done():
		conn.Close()
		return
	}

	go client.WritePump()
	// The request context dies with the handler; the pumps outlive it.
	go client.ReadPump(context.Background())
}
