package covers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gamehub/pkg/apperr"
)

type Handler struct {
	Service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{Service: s}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/games/:id/cover/next", h.next)
	rg.GET("/games/:id/cover/history", h.history)
	rg.DELETE("/games/:id/cover/history", h.reset)
}

func gameID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) next(c *gin.Context) {
	id, ok := gameID(c)
	if !ok {
		return
	}
	sel, err := h.Service.Next(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sel)
}

func (h *Handler) history(c *gin.Context) {
	id, ok := gameID(c)
	if !ok {
		return
	}
	hist, err := h.Service.HistoryFor(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, hist)
}

func (h *Handler) reset(c *gin.Context) {
	id, ok := gameID(c)
	if !ok {
		return
	}
	if err := h.Service.ResetHistory(c.Request.Context(), id); err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}
