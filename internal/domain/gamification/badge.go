package gamification

import (
	"strings"

	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
)

// Eligibility restricts which principal kinds can hold a badge
type Eligibility string

const (
	EligibilityRegistered Eligibility = "registered"
	EligibilityAnonymous  Eligibility = "anonymous"
	EligibilityBoth       Eligibility = "both"
)

// IsValid checks if the eligibility is valid
func (e Eligibility) IsValid() bool {
	switch e {
	case EligibilityRegistered, EligibilityAnonymous, EligibilityBoth:
		return true
	}
	return false
}

// Allows reports whether a principal of kind k may earn the badge
func (e Eligibility) Allows(k principal.Kind) bool {
	switch e {
	case EligibilityBoth:
		return true
	case EligibilityRegistered:
		return k == principal.KindRegistered
	case EligibilityAnonymous:
		return k == principal.KindAnonymous
	}
	return false
}

// Badge is a rung on an event type's threshold ladder
type Badge struct {
	shared.BaseEntity
	Name           string
	Description    string
	EventTypeID    uuid.UUID
	RequiredPoints int64
	Eligibility    Eligibility
}

// NewBadge creates a badge for an event type
func NewBadge(name, description string, eventTypeID uuid.UUID, requiredPoints int64, eligibility Eligibility) (*Badge, error) {
	b := &Badge{BaseEntity: shared.NewBaseEntity(), EventTypeID: eventTypeID}
	if err := b.Update(name, description, requiredPoints, eligibility); err != nil {
		return nil, err
	}
	return b, nil
}

// Update changes the badge definition
func (b *Badge) Update(name, description string, requiredPoints int64, eligibility Eligibility) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Badge name must be 1-100 characters")
	}
	if requiredPoints < 0 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Required points cannot be negative")
	}
	if eligibility == "" {
		eligibility = EligibilityBoth
	}
	if !eligibility.IsValid() {
		return shared.NewDomainError(shared.CodeInvalidInput, "Invalid badge eligibility")
	}
	b.Name = name
	b.Description = strings.TrimSpace(description)
	b.RequiredPoints = requiredPoints
	b.Eligibility = eligibility
	b.Touch()
	return nil
}
