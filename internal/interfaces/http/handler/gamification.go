package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gamapp "github.com/meterly/backend/internal/application/gamification"
	"github.com/meterly/backend/internal/interfaces/http/middleware"
)

// GamificationHandler serves events, progress, rankings and the event type catalog
type GamificationHandler struct {
	BaseHandler
	engine  *gamapp.Engine
	catalog *gamapp.CatalogService
}

// NewGamificationHandler creates a new gamification handler
func NewGamificationHandler(engine *gamapp.Engine, catalog *gamapp.CatalogService) *GamificationHandler {
	return &GamificationHandler{engine: engine, catalog: catalog}
}

// RecordEvent godoc
// @Summary      Record an event
// @Description  Records one occurrence of the event type for the caller and recomputes its points and badge
// @Tags         gamification
// @Accept       json
// @Produce      json
// @Param        request body RecordEventRequest true "Event"
// @Success      201 {object} dto.Response{data=EventResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /gamification/events [post]
func (h *GamificationHandler) RecordEvent(c *gin.Context) {
	var req RecordEventRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.engine.RecordEvent(c.Request.Context(), middleware.GetPrincipalRef(c), req.EventType)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toEventResponse(result))
}

// GetProgress godoc
// @Summary      Progress for one event type
// @Tags         gamification
// @Produce      json
// @Param        event_type path string true "Event type name"
// @Success      200 {object} dto.Response{data=ProgressResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /gamification/progress/{event_type} [get]
func (h *GamificationHandler) GetProgress(c *gin.Context) {
	progress, err := h.engine.GetProgress(c.Request.Context(), middleware.GetPrincipalRef(c), c.Param("event_type"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toProgressResponse(progress))
}

// ListProgress godoc
// @Summary      Progress across all event types
// @Tags         gamification
// @Produce      json
// @Success      200 {object} dto.Response{data=[]ProgressResponse}
// @Router       /gamification/progress [get]
func (h *GamificationHandler) ListProgress(c *gin.Context) {
	rows, err := h.engine.ListProgress(c.Request.Context(), middleware.GetPrincipalRef(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, mapSlice(rows, toProgressResponse))
}

// GetRankings godoc
// @Summary      Leaderboard
// @Description  Principals by total points across all event types
// @Tags         gamification
// @Produce      json
// @Param        limit query int false "Number of entries" default(10)
// @Success      200 {object} dto.Response{data=[]RankingResponse}
// @Router       /gamification/rankings [get]
func (h *GamificationHandler) GetRankings(c *gin.Context) {
	var req RankingsQuery
	if !h.bindQuery(c, &req) {
		return
	}

	rankings, err := h.engine.GetRankings(c.Request.Context(), req.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toRankingResponses(rankings))
}

// ListEventTypes godoc
// @Summary      List event types
// @Tags         gamification
// @Produce      json
// @Success      200 {object} dto.Response{data=[]EventTypeResponse}
// @Router       /gamification/event-types [get]
func (h *GamificationHandler) ListEventTypes(c *gin.Context) {
	types, err := h.catalog.ListEventTypes(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, mapSlice(types, toEventTypeResponse))
}

// GetEventType godoc
// @Summary      Get an event type
// @Tags         admin
// @Produce      json
// @Param        id path string true "Event type ID"
// @Success      200 {object} dto.Response{data=EventTypeResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/event-types/{id} [get]
func (h *GamificationHandler) GetEventType(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	et, err := h.catalog.GetEventType(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toEventTypeResponse(et))
}

// CreateEventType godoc
// @Summary      Create an event type
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        request body EventTypeRequest true "Event type"
// @Success      201 {object} dto.Response{data=EventTypeResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/event-types [post]
func (h *GamificationHandler) CreateEventType(c *gin.Context) {
	var req EventTypeRequest
	if !h.bindJSON(c, &req) {
		return
	}

	et, err := h.catalog.CreateEventType(c.Request.Context(), gamapp.EventTypeInput{
		Name:           req.Name,
		Description:    req.Description,
		PointsPerEvent: req.PointsPerEvent,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toEventTypeResponse(et))
}

// UpdateEventType godoc
// @Summary      Update an event type
// @Description  Changing points_per_event recomputes every aggregate of the type. Renaming a referenced type is rejected.
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        id path string true "Event type ID"
// @Param        request body EventTypeRequest true "Event type"
// @Success      200 {object} dto.Response{data=EventTypeResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/event-types/{id} [put]
func (h *GamificationHandler) UpdateEventType(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req EventTypeRequest
	if !h.bindJSON(c, &req) {
		return
	}

	et, err := h.catalog.UpdateEventType(c.Request.Context(), id, gamapp.EventTypeInput{
		Name:           req.Name,
		Description:    req.Description,
		PointsPerEvent: req.PointsPerEvent,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toEventTypeResponse(et))
}

// DeleteEventType godoc
// @Summary      Delete an event type
// @Tags         admin
// @Param        id path string true "Event type ID"
// @Success      204
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/event-types/{id} [delete]
func (h *GamificationHandler) DeleteEventType(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.catalog.DeleteEventType(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// RecomputeEventType godoc
// @Summary      Recompute aggregates of an event type
// @Tags         admin
// @Produce      json
// @Param        id path string true "Event type ID"
// @Success      200 {object} dto.Response{data=RecomputeResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/event-types/{id}/recompute [post]
func (h *GamificationHandler) RecomputeEventType(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	n, err := h.engine.RecomputeEventType(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, RecomputeResponse{Recomputed: n})
}

// ListBadges godoc
// @Summary      List badges
// @Tags         gamification
// @Produce      json
// @Param        event_type_id query string false "Event type ID"
// @Success      200 {object} dto.Response{data=[]BadgeResponse}
// @Router       /gamification/badges [get]
func (h *GamificationHandler) ListBadges(c *gin.Context) {
	var req BadgeListQuery
	if !h.bindQuery(c, &req) {
		return
	}
	var eventTypeID *uuid.UUID
	if req.EventTypeID != "" {
		id := uuid.MustParse(req.EventTypeID)
		eventTypeID = &id
	}

	badges, err := h.catalog.ListBadges(c.Request.Context(), eventTypeID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, mapSlice(badges, toBadgeResponse))
}

// CreateBadge godoc
// @Summary      Create a badge
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        request body BadgeRequest true "Badge"
// @Success      201 {object} dto.Response{data=BadgeResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/badges [post]
func (h *GamificationHandler) CreateBadge(c *gin.Context) {
	var req BadgeRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if req.EventTypeID == uuid.Nil {
		h.BadRequest(c, "event_type_id is required")
		return
	}

	badge, err := h.catalog.CreateBadge(c.Request.Context(), toBadgeInput(req))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toBadgeResponse(badge))
}

// UpdateBadge godoc
// @Summary      Update a badge
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        id path string true "Badge ID"
// @Param        request body BadgeRequest true "Badge"
// @Success      200 {object} dto.Response{data=BadgeResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/badges/{id} [put]
func (h *GamificationHandler) UpdateBadge(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req BadgeRequest
	if !h.bindJSON(c, &req) {
		return
	}

	badge, err := h.catalog.UpdateBadge(c.Request.Context(), id, toBadgeInput(req))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toBadgeResponse(badge))
}

// DeleteBadge godoc
// @Summary      Delete a badge
// @Tags         admin
// @Param        id path string true "Badge ID"
// @Success      204
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /admin/badges/{id} [delete]
func (h *GamificationHandler) DeleteBadge(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.catalog.DeleteBadge(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

func toBadgeInput(req BadgeRequest) gamapp.BadgeInput {
	return gamapp.BadgeInput{
		Name:           req.Name,
		Description:    req.Description,
		EventTypeID:    req.EventTypeID,
		RequiredPoints: req.RequiredPoints,
		Eligibility:    req.Eligibility,
	}
}
