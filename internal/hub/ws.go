package hub

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades to a read-only event feed. ?job= limits it to one job
// type.
func WSHandler(h *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		topic := strings.TrimSpace(c.Query("job"))

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		h.AddWS(ws, topic)
		h.log.Debug("ws subscriber connected", "remote", c.ClientIP(), "job", topic)

		// drain until the client goes away
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}

		h.RemoveWS(ws)
		h.log.Debug("ws subscriber disconnected", "remote", c.ClientIP())
	}
}
