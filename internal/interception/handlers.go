package interception

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/muletrace/internal/complaints"
	"github.com/mbd888/muletrace/internal/logging"
	"github.com/mbd888/muletrace/internal/validation"
)

// Handler serves POST /process_transaction.
type Handler struct {
	engine *Engine
}

// NewHandler creates a new interception handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes mounts the decision endpoint on r (the /api group).
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/process_transaction", h.ProcessTransaction)
}

// ProcessTransactionRequest is an attempted withdrawal.
type ProcessTransactionRequest struct {
	MuleID string   `json:"mule_id"`
	Amount *int64   `json:"amount"`
	Lat    *float64 `json:"lat"`
	Long   *float64 `json:"long"`
}

// ProcessTransactionResponse reports the decision.
type ProcessTransactionResponse struct {
	Status         Decision `json:"status"`
	Message        string   `json:"message"`
	AlertStatus    string   `json:"alert_status,omitempty"`
	AlertReference string   `json:"alert_reference,omitempty"`
}

// ProcessTransaction handles POST /api/process_transaction
func (h *Handler) ProcessTransaction(c *gin.Context) {
	var req ProcessTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must be JSON with an integer amount",
		})
		return
	}
	req.MuleID = strings.TrimSpace(req.MuleID)
	if req.MuleID == "" || req.Amount == nil || req.Lat == nil || req.Long == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_parameter",
			"message": "mule_id, amount, lat and long are required",
		})
		return
	}
	if errs := validation.Validate(
		validation.AccountID("mule_id", req.MuleID),
		validation.NonNegative("amount", *req.Amount),
		validation.Latitude("lat", *req.Lat),
		validation.Longitude("long", *req.Long),
	); len(errs) > 0 {
		validation.Abort(c, errs)
		return
	}

	ctx := c.Request.Context()
	res, err := h.engine.Decide(ctx, Proposal{
		AccountID: req.MuleID,
		Amount:    *req.Amount,
		Lat:       *req.Lat,
		Long:      *req.Long,
	})
	if err != nil {
		logging.L(ctx).Error("transaction decision failed", "mule_id", req.MuleID, "error", err)
		if errors.Is(err, complaints.ErrStoreUnavailable) {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "store_unavailable",
				"message": "Complaint store is unavailable; no decision was taken",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, ProcessTransactionResponse{
		Status:         res.Decision,
		Message:        res.Message,
		AlertStatus:    res.AlertStatus,
		AlertReference: res.AlertReference,
	})
}
