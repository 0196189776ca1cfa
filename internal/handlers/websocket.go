package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/requestdata"
	"github.com/PabloG6/medscan-intellibus/internal/socket"
)

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		},
	}
}

// WsHandler upgrades an authenticated request and subscribes the connection
// to the caller's user channel.
func WsHandler(hub *socket.Hub, log *logger.Logger, allowedOrigins []string) gin.HandlerFunc {
	upgrader := newUpgrader(allowedOrigins)
	wsLog := log.With("handler", "WsHandler")
	return func(c *gin.Context) {
		rd := requestdata.GetRequestData(c.Request.Context())
		if rd == nil || rd.UserID == uuid.Nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			wsLog.Warn("Failed to upgrade to websocket", "error", err)
			return
		}
		// The request context ends when this handler returns; the socket outlives it.
		ctx, cancel := context.WithCancel(context.Background())
		client := socket.NewClient(conn, hub, rd.UserID, cancel, wsLog)
		hub.Subscribe(client, []string{socket.UserChannel(rd.UserID)})

		go client.WriteLoop(ctx)
		go client.ReadLoop(ctx)
	}
}
