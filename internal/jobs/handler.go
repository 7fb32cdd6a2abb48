package jobs

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gamehub/pkg/apperr"
)

// SpecSource builds the spec for a job type.
type SpecSource interface {
	Spec(t Type) (Spec, bool)
}

type Handler struct {
	Registry *Registry
	Specs    SpecSource
}

func NewHandler(reg *Registry, specs SpecSource) *Handler {
	return &Handler{Registry: reg, Specs: specs}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/jobs/:type", h.start)
	rg.GET("/jobs/:type", h.status)
}

func (h *Handler) start(c *gin.Context) {
	spec, ok := h.Specs.Spec(Type(strings.TrimSpace(c.Param("type"))))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job type"})
		return
	}

	info, err := h.Registry.Start(c.Request.Context(), spec)
	if err != nil {
		var ce *apperr.ConflictError
		if errors.As(err, &ce) {
			c.JSON(http.StatusConflict, gin.H{"error": ce.Error(), "progress": ce.Progress})
			return
		}
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, info)
}

func (h *Handler) status(c *gin.Context) {
	t := Type(strings.TrimSpace(c.Param("type")))
	if _, ok := h.Specs.Spec(t); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job type"})
		return
	}
	c.JSON(http.StatusOK, h.Registry.Status(t))
}
