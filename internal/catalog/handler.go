package catalog

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"gamehub/pkg/apperr"
	"gamehub/pkg/models"
)

const maxSnapshotBytes = 32 << 20

type Handler struct {
	Reconciler *Reconciler
}

func NewHandler(r *Reconciler) *Handler {
	return &Handler{Reconciler: r}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/catalog/import", h.importSnapshot)
	rg.POST("/catalog/sync", h.syncSnapshot)
}

func (h *Handler) importSnapshot(c *gin.Context) {
	s, ok := readSnapshot(c)
	if !ok {
		return
	}
	res, err := h.Reconciler.Import(c.Request.Context(), s)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) syncSnapshot(c *gin.Context) {
	s, ok := readSnapshot(c)
	if !ok {
		return
	}
	res, err := h.Reconciler.Sync(c.Request.Context(), s)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func readSnapshot(c *gin.Context) (*models.CatalogSnapshot, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSnapshotBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return nil, false
	}
	s, err := DecodeSnapshot(body)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return nil, false
	}
	return s, true
}
