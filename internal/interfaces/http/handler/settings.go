package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	settingsapp "github.com/meterly/backend/internal/application/settings"
)

// UpdateSettingsRequest patches runtime settings. Omitted fields are unchanged.
type UpdateSettingsRequest struct {
	DisableCredits          *bool      `json:"disable_credits"`
	EnableCoupons           *bool      `json:"enable_coupons"`
	AnonymousDefaultCredits *int64     `json:"anonymous_default_credits" binding:"omitempty,min=0"`
	FreemiumDefaultCredits  *int64     `json:"freemium_default_credits" binding:"omitempty,min=0"`
	PremiumDefaultCredits   *int64     `json:"premium_default_credits" binding:"omitempty,min=0"`
	ResetIntervalDays       *int       `json:"reset_interval_days" binding:"omitempty,min=1"`
	ActionCost              *int64     `json:"action_cost" binding:"omitempty,min=0"`
	AnonymousSessionTTLDays *int       `json:"anonymous_session_ttl_days" binding:"omitempty,min=1"`
	DemoCouponTypeID        *uuid.UUID `json:"demo_coupon_type_id"`
}

// SettingsHandler reads and updates runtime settings
type SettingsHandler struct {
	BaseHandler
	service *settingsapp.Service
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(service *settingsapp.Service) *SettingsHandler {
	return &SettingsHandler{service: service}
}

// Get godoc
// @Summary      Current settings
// @Tags         admin
// @Produce      json
// @Success      200 {object} dto.Response{data=settings.Settings}
// @Security     BearerAuth
// @Router       /admin/settings [get]
func (h *SettingsHandler) Get(c *gin.Context) {
	s, err := h.service.Get(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, s)
}

// Update godoc
// @Summary      Update settings
// @Description  Applies the patch and invalidates cached settings on every instance. A nil UUID clears the demo coupon type.
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        request body UpdateSettingsRequest true "Settings patch"
// @Success      200 {object} dto.Response{data=settings.Settings}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/settings [put]
func (h *SettingsHandler) Update(c *gin.Context) {
	var req UpdateSettingsRequest
	if !h.bindJSON(c, &req) {
		return
	}

	s, err := h.service.Update(c.Request.Context(), settingsapp.Patch{
		DisableCredits:          req.DisableCredits,
		EnableCoupons:           req.EnableCoupons,
		AnonymousDefaultCredits: req.AnonymousDefaultCredits,
		FreemiumDefaultCredits:  req.FreemiumDefaultCredits,
		PremiumDefaultCredits:   req.PremiumDefaultCredits,
		ResetIntervalDays:       req.ResetIntervalDays,
		ActionCost:              req.ActionCost,
		AnonymousSessionTTLDays: req.AnonymousSessionTTLDays,
		DemoCouponTypeID:        req.DemoCouponTypeID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, s)
}
