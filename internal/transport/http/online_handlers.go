package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/vovakirdan/wirerelay/internal/core"
)

// OnlineHandlers exposes the relay directory over HTTP.
type OnlineHandlers struct {
	hub *core.Hub
}

// NewOnlineHandlers creates a new online handlers instance.
func NewOnlineHandlers(hub *core.Hub) *OnlineHandlers {
	return &OnlineHandlers{hub: hub}
}

// OnlineUser is one connected member in API responses.
type OnlineUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// OnlineResponse lists connected members in join order.
type OnlineResponse struct {
	Count int          `json:"count"`
	Users []OnlineUser `json:"users"`
}

// List handles the directory query.
// GET /api/online
func (h *OnlineHandlers) List(c *gin.Context) {
	users := lo.Map(h.hub.Online(), func(id core.Identity, _ int) OnlineUser {
		return OnlineUser{ID: id.UserID, Username: id.Username}
	})
	c.JSON(http.StatusOK, OnlineResponse{Count: len(users), Users: users})
}
