package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meterline/meterline/internal/api/dto"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/logger"
	"github.com/meterline/meterline/internal/service"
)

type UsageHandler struct {
	service service.UsageService
	log     *logger.Logger
}

func NewUsageHandler(service service.UsageService, log *logger.Logger) *UsageHandler {
	return &UsageHandler{service: service, log: log}
}

func (h *UsageHandler) RegisterUsage(c *gin.Context) {
	ctx := c.Request.Context()
	var req dto.RegisterUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Errorw("failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}
	if err := req.Validate(); err != nil {
		c.Error(err)
		return
	}

	if err := h.service.RegisterUsage(ctx, req.GroupName, req.SubscriptionID, req.Quantity, req.Start, req.End); err != nil {
		h.log.Errorw("failed to register usage", "error", err, "group", req.GroupName)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "usage registered"})
}

func (h *UsageHandler) GetCurrentUsage(c *gin.Context) {
	ctx := c.Request.Context()
	var query dto.UsageQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	cycle, err := query.Cycle()
	if err != nil {
		c.Error(err)
		return
	}

	quantity, err := h.service.GetCurrentUsage(ctx, query.GroupName, query.SubscriptionID, cycle)
	if err != nil {
		h.log.Errorw("failed to get current usage", "error", err, "group", query.GroupName)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.CurrentUsageResponse{
		GroupName:      query.GroupName,
		SubscriptionID: query.SubscriptionID,
		Quantity:       quantity,
	})
}

func (h *UsageHandler) GetCharges(c *gin.Context) {
	ctx := c.Request.Context()
	var query dto.UsageQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	cycle, err := query.RequireCycle()
	if err != nil {
		c.Error(err)
		return
	}

	charges, err := h.service.GetCharges(ctx, query.GroupName, query.SubscriptionID, cycle)
	if err != nil {
		h.log.Errorw("failed to compute charges", "error", err, "group", query.GroupName)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.ChargesResponse{
		GroupName:      query.GroupName,
		SubscriptionID: query.SubscriptionID,
		Cycle:          cycle,
		Charges:        charges,
	})
}

func (h *UsageHandler) GetCompleteness(c *gin.Context) {
	ctx := c.Request.Context()
	var query dto.UsageQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	cycle, err := query.RequireCycle()
	if err != nil {
		c.Error(err)
		return
	}

	complete, err := h.service.IsComplete(ctx, query.GroupName, query.SubscriptionID, cycle)
	if err != nil {
		h.log.Errorw("failed to check completeness", "error", err, "group", query.GroupName)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.CompletenessResponse{
		GroupName:      query.GroupName,
		SubscriptionID: query.SubscriptionID,
		Cycle:          cycle,
		Complete:       complete,
	})
}

func (h *UsageHandler) NotifySubscriptionChange(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("subscription ID is required").
			WithHint("Subscription ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	if err := h.service.NotifySubscriptionChange(ctx, id); err != nil {
		h.log.Errorw("failed to apply subscription change", "error", err, "subscription_id", id)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "subscription change applied"})
}
