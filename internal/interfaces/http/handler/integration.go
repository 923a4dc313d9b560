package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	integrationapp "github.com/meterly/backend/internal/application/integration"
	"github.com/meterly/backend/internal/domain/integration"
)

// IntegrationRequest creates or replaces an outbound webhook integration
type IntegrationRequest struct {
	Name   string   `json:"name" binding:"required,max=100"`
	URL    string   `json:"url" binding:"required,url,max=2048"`
	Events []string `json:"events" binding:"required,min=1,dive,required,max=100"`
	Secret string   `json:"secret" binding:"max=255"`
	Active *bool    `json:"active"`
}

// IntegrationResponse describes an integration. The secret is never returned.
type IntegrationResponse struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	URL             string     `json:"url"`
	Events          []string   `json:"events"`
	HasSecret       bool       `json:"has_secret"`
	Active          bool       `json:"active"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toIntegrationResponse(in *integration.Integration) IntegrationResponse {
	return IntegrationResponse{
		ID:              in.ID,
		Name:            in.Name,
		URL:             in.URL,
		Events:          in.Events,
		HasSecret:       in.Secret != "",
		Active:          in.Active,
		LastTriggeredAt: in.LastTriggeredAt,
		CreatedAt:       in.CreatedAt,
		UpdatedAt:       in.UpdatedAt,
	}
}

// IntegrationHandler administers outbound webhooks
type IntegrationHandler struct {
	BaseHandler
	service *integrationapp.Service
}

// NewIntegrationHandler creates a new integration handler
func NewIntegrationHandler(service *integrationapp.Service) *IntegrationHandler {
	return &IntegrationHandler{service: service}
}

// List godoc
// @Summary      List integrations
// @Tags         admin
// @Produce      json
// @Success      200 {object} dto.Response{data=[]IntegrationResponse}
// @Security     BearerAuth
// @Router       /admin/integrations [get]
func (h *IntegrationHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, mapSlice(items, toIntegrationResponse))
}

// Get godoc
// @Summary      Get an integration
// @Tags         admin
// @Produce      json
// @Param        id path string true "Integration ID"
// @Success      200 {object} dto.Response{data=IntegrationResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/integrations/{id} [get]
func (h *IntegrationHandler) Get(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	in, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toIntegrationResponse(in))
}

// Create godoc
// @Summary      Create an integration
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        request body IntegrationRequest true "Integration"
// @Success      201 {object} dto.Response{data=IntegrationResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/integrations [post]
func (h *IntegrationHandler) Create(c *gin.Context) {
	var req IntegrationRequest
	if !h.bindJSON(c, &req) {
		return
	}
	in, err := h.service.Create(c.Request.Context(), toIntegrationInput(req))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toIntegrationResponse(in))
}

// Update godoc
// @Summary      Update an integration
// @Description  An empty secret keeps the stored one
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        id path string true "Integration ID"
// @Param        request body IntegrationRequest true "Integration"
// @Success      200 {object} dto.Response{data=IntegrationResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/integrations/{id} [put]
func (h *IntegrationHandler) Update(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req IntegrationRequest
	if !h.bindJSON(c, &req) {
		return
	}
	in, err := h.service.Update(c.Request.Context(), id, toIntegrationInput(req))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toIntegrationResponse(in))
}

// Delete godoc
// @Summary      Delete an integration
// @Tags         admin
// @Param        id path string true "Integration ID"
// @Success      204
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/integrations/{id} [delete]
func (h *IntegrationHandler) Delete(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Test godoc
// @Summary      Send a ping delivery
// @Tags         admin
// @Produce      json
// @Param        id path string true "Integration ID"
// @Success      200 {object} dto.Response{data=integrationapp.TestResult}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/integrations/{id}/test [post]
func (h *IntegrationHandler) Test(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	result, err := h.service.Test(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

func toIntegrationInput(req IntegrationRequest) integrationapp.Input {
	return integrationapp.Input{
		Name:   req.Name,
		URL:    req.URL,
		Events: req.Events,
		Secret: req.Secret,
		Active: req.Active,
	}
}
