package websocket

import (
	"net/http"

	"lifeline/internal/utils"
	"lifeline/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Configure properly in production
	},
}

// Handler upgrades authenticated HTTP requests to websocket connections
// and exposes the hub's publish surface to the service layer.
type Handler struct {
	hub       *Hub
	jwtSecret string
	log       *logger.Logger
}

func NewHandler(jwtSecret string, log *logger.Logger) *Handler {
	hub := NewHub(log)
	go hub.Run()

	return &Handler{
		hub:       hub,
		jwtSecret: jwtSecret,
		log:       log,
	}
}

// HandleWebSocket authenticates the connection from its bearer token
// (query parameter or Authorization header) before any upgrade happens.
// Unauthenticated connections never reach the hub.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = bearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		utils.UnauthorizedResponse(c)
		return
	}

	claims, err := utils.ValidateToken(token, h.jwtSecret)
	if err != nil {
		utils.UnauthorizedResponse(c)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, claims.UserID, claims.Username, claims.UserType)
	h.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// Publish forwards an event to a room; safe to call from any goroutine.
func (h *Handler) Publish(room, event string, data interface{}) {
	h.hub.Publish(room, event, data)
}

func (h *Handler) GetHub() *Hub {
	return h.hub
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
