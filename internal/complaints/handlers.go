package complaints

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/muletrace/internal/logging"
)

// Handler serves the investigator read endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a new complaints handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the read endpoints on r (the /api group).
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/hotspots", h.Hotspots)
	r.GET("/mule_history", h.MuleHistory)
}

// Hotspots handles GET /api/hotspots
func (h *Handler) Hotspots(c *gin.Context) {
	spots, err := h.service.Hotspots(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, spots)
}

// MuleHistory handles GET /api/mule_history?mule_id=
func (h *Handler) MuleHistory(c *gin.Context) {
	accountID := strings.TrimSpace(c.Query("mule_id"))
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_parameter",
			"message": "Please provide a mule_id",
		})
		return
	}

	points, err := h.service.History(c.Request.Context(), accountID)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, points)
}

func storeError(c *gin.Context, err error) {
	logging.L(c.Request.Context()).Error("complaint store query failed", "error", err)
	if errors.Is(err, ErrStoreUnavailable) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "store_unavailable",
			"message": "Complaint store is unavailable",
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "Internal server error",
	})
}
