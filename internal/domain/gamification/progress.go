package gamification

import (
	"bytes"
	"time"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/principal"
)

// UserGamification is the derived aggregate for one (principal, event type)
type UserGamification struct {
	ID          uuid.UUID
	Principal   principal.Ref
	EventTypeID uuid.UUID
	Points      int64
	BadgeID     *uuid.UUID
	UpdatedAt   time.Time
}

// Score is the outcome of a recomputation
type Score struct {
	Points int64
	Badge  *Badge
}

// Compute derives points and the current badge from the event count. It is a
// pure function of its inputs.
//
// The current badge is the eligible badge with the highest required points
// not above the total. Equal thresholds resolve to the lowest id.
func Compute(count int64, eventType *EventType, badges []Badge, kind principal.Kind) Score {
	points := count * eventType.PointsPerEvent
	var best *Badge
	for i := range badges {
		b := &badges[i]
		if b.EventTypeID != eventType.ID || b.RequiredPoints > points || !b.Eligibility.Allows(kind) {
			continue
		}
		if best == nil || b.RequiredPoints > best.RequiredPoints ||
			(b.RequiredPoints == best.RequiredPoints && bytes.Compare(b.ID[:], best.ID[:]) < 0) {
			best = b
		}
	}
	return Score{Points: points, Badge: best}
}

// Apply writes a score into the aggregate. It reports whether the badge changed.
func (g *UserGamification) Apply(s Score, at time.Time) bool {
	var next *uuid.UUID
	if s.Badge != nil {
		id := s.Badge.ID
		next = &id
	}
	changed := !sameBadge(g.BadgeID, next)
	g.Points = s.Points
	g.BadgeID = next
	g.UpdatedAt = at
	return changed
}

// NewUserGamification creates an empty aggregate
func NewUserGamification(ref principal.Ref, eventTypeID uuid.UUID) *UserGamification {
	return &UserGamification{
		ID:          uuid.New(),
		Principal:   ref,
		EventTypeID: eventTypeID,
		UpdatedAt:   time.Now(),
	}
}

func sameBadge(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
