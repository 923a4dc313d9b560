package handler

import (
	"time"

	"github.com/google/uuid"
	gamapp "github.com/meterly/backend/internal/application/gamification"
	"github.com/meterly/backend/internal/domain/gamification"
)

// RecordEventRequest records one occurrence of an event type for the caller
type RecordEventRequest struct {
	EventType string `json:"event_type" binding:"required,event_name"`
}

// RankingsQuery bounds the leaderboard
type RankingsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// BadgeListQuery optionally narrows badges to one event type
type BadgeListQuery struct {
	EventTypeID string `form:"event_type_id" binding:"omitempty,uuid"`
}

// EventTypeRequest creates or replaces an event type
type EventTypeRequest struct {
	Name           string `json:"name" binding:"required,event_name"`
	Description    string `json:"description" binding:"max=500"`
	PointsPerEvent int64  `json:"points_per_event" binding:"min=0"`
}

// BadgeRequest creates or replaces a badge. event_type_id is ignored on update.
type BadgeRequest struct {
	Name           string                   `json:"name" binding:"required,max=100"`
	Description    string                   `json:"description" binding:"max=500"`
	EventTypeID    uuid.UUID                `json:"event_type_id"`
	RequiredPoints int64                    `json:"required_points" binding:"min=0"`
	Eligibility    gamification.Eligibility `json:"eligibility" binding:"omitempty,oneof=registered anonymous both"`
}

// EventTypeResponse is an event type of the catalog
type EventTypeResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	PointsPerEvent int64     `json:"points_per_event"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BadgeResponse is one rung of an event type's badge ladder
type BadgeResponse struct {
	ID             uuid.UUID                `json:"id"`
	Name           string                   `json:"name"`
	Description    string                   `json:"description,omitempty"`
	EventTypeID    uuid.UUID                `json:"event_type_id"`
	RequiredPoints int64                    `json:"required_points"`
	Eligibility    gamification.Eligibility `json:"eligibility"`
}

// ProgressResponse is the aggregate of one principal for one event type
type ProgressResponse struct {
	Principal   string     `json:"principal"`
	EventTypeID uuid.UUID  `json:"event_type_id"`
	Points      int64      `json:"points"`
	BadgeID     *uuid.UUID `json:"badge_id,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// EventResponse is the outcome of recording an event
type EventResponse struct {
	EventID      uuid.UUID        `json:"event_id"`
	Progress     ProgressResponse `json:"progress"`
	Badge        *BadgeResponse   `json:"badge,omitempty"`
	BadgeChanged bool             `json:"badge_changed"`
}

// RankingResponse is one leaderboard entry
type RankingResponse struct {
	Rank        int    `json:"rank"`
	Principal   string `json:"principal"`
	DisplayName string `json:"display_name"`
	TotalPoints int64  `json:"total_points"`
}

func toEventTypeResponse(et *gamification.EventType) EventTypeResponse {
	return EventTypeResponse{
		ID:             et.ID,
		Name:           et.Name,
		Description:    et.Description,
		PointsPerEvent: et.PointsPerEvent,
		CreatedAt:      et.CreatedAt,
		UpdatedAt:      et.UpdatedAt,
	}
}

func toBadgeResponse(b *gamification.Badge) BadgeResponse {
	return BadgeResponse{
		ID:             b.ID,
		Name:           b.Name,
		Description:    b.Description,
		EventTypeID:    b.EventTypeID,
		RequiredPoints: b.RequiredPoints,
		Eligibility:    b.Eligibility,
	}
}

func toProgressResponse(g *gamification.UserGamification) ProgressResponse {
	return ProgressResponse{
		Principal:   g.Principal.String(),
		EventTypeID: g.EventTypeID,
		Points:      g.Points,
		BadgeID:     g.BadgeID,
		UpdatedAt:   g.UpdatedAt,
	}
}

func toEventResponse(r *gamapp.RecordResult) EventResponse {
	resp := EventResponse{
		EventID:      r.Event.ID,
		Progress:     toProgressResponse(r.Progress),
		BadgeChanged: r.BadgeChanged,
	}
	if r.Badge != nil {
		b := toBadgeResponse(r.Badge)
		resp.Badge = &b
	}
	return resp
}

func toRankingResponses(rankings []gamification.Ranking) []RankingResponse {
	out := make([]RankingResponse, len(rankings))
	for i := range rankings {
		out[i] = RankingResponse{
			Rank:        i + 1,
			Principal:   rankings[i].Principal.String(),
			DisplayName: rankings[i].DisplayName,
			TotalPoints: rankings[i].TotalPoints,
		}
	}
	return out
}

// RecomputeResponse reports how many aggregates were rebuilt
type RecomputeResponse struct {
	Recomputed int `json:"recomputed"`
}
