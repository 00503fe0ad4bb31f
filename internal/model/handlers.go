package model

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/muletrace/internal/features"
	"github.com/mbd888/muletrace/internal/logging"
	"github.com/mbd888/muletrace/internal/validation"
)

// Handler serves POST /predict_next.
type Handler struct {
	handle *Handle
	now    func() time.Time
}

// NewHandler creates a prediction handler. handle may be nil; every request
// then gets 503.
func NewHandler(handle *Handle) *Handler {
	return &Handler{handle: handle, now: time.Now}
}

// WithClock overrides the clock used when hour or day is omitted.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

// RegisterRoutes mounts the prediction endpoint on r (the /api group).
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/predict_next", h.PredictNext)
}

// PredictNextRequest is the predict_next body. Hour and Day default to the
// server's wall clock when omitted.
type PredictNextRequest struct {
	MuleID      string   `json:"mule_id"`
	CurrentLat  *float64 `json:"current_lat"`
	CurrentLong *float64 `json:"current_long"`
	Hour        *int     `json:"hour,omitempty"`
	Day         *int     `json:"day,omitempty"`
}

// PredictNextResponse is the predict_next reply.
type PredictNextResponse struct {
	PredictedLat  float64 `json:"predicted_lat"`
	PredictedLong float64 `json:"predicted_long"`
	Confidence    string  `json:"confidence"`
	AlertMessage  string  `json:"alert_message"`
}

// PredictNext handles POST /api/predict_next
func (h *Handler) PredictNext(c *gin.Context) {
	var req PredictNextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must be JSON",
		})
		return
	}
	req.MuleID = strings.TrimSpace(req.MuleID)
	if req.MuleID == "" || req.CurrentLat == nil || req.CurrentLong == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_parameter",
			"message": "mule_id, current_lat and current_long are required",
		})
		return
	}
	if errs := validation.Validate(
		validation.Latitude("current_lat", *req.CurrentLat),
		validation.Longitude("current_long", *req.CurrentLong),
		validation.IntBetween("hour", req.Hour, 0, 23),
		validation.IntBetween("day", req.Day, 0, 6),
	); len(errs) > 0 {
		validation.Abort(c, errs)
		return
	}

	now := h.now()
	hour, day := now.Hour(), features.Weekday(now)
	if req.Hour != nil {
		hour = *req.Hour
	}
	if req.Day != nil {
		day = *req.Day
	}

	ctx := c.Request.Context()
	p, err := h.handle.Predict(ctx, req.MuleID, *req.CurrentLat, *req.CurrentLong, hour, day)
	if err != nil {
		if errors.Is(err, ErrModelUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "model_unavailable",
				"message": "Prediction model is not loaded",
			})
			return
		}
		logging.L(ctx).Error("prediction failed", "mule_id", req.MuleID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Internal server error",
		})
		return
	}

	confidence := "High"
	if !p.KnownAccount {
		confidence = "Low"
	}
	c.JSON(http.StatusOK, PredictNextResponse{
		PredictedLat:  p.Lat,
		PredictedLong: p.Long,
		Confidence:    confidence,
		AlertMessage:  AlertMessage(p.Lat, p.Long),
	})
}

// AlertMessage is the investigator-facing summary of a prediction.
func AlertMessage(lat, long float64) string {
	return fmt.Sprintf("Suspect likely moving towards Lat: %.4f, Lng: %.4f", lat, long)
}
