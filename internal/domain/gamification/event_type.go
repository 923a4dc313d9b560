// Package gamification turns recorded activity into points and badges.
package gamification

import (
	"regexp"
	"strings"

	"github.com/meterly/backend/internal/domain/shared"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var eventTypeNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_.\-]{0,63}$`)

// EventType is a catalog entry that assigns points to each occurrence of an
// activity. Points are frozen once any event references the type.
type EventType struct {
	shared.BaseEntity
	Name           string
	Description    string
	PointsPerEvent int64
}

// NewEventType creates a catalog entry
func NewEventType(name, description string, pointsPerEvent int64) (*EventType, error) {
	name = NormalizeEventTypeName(name)
	if err := validateEventTypeName(name); err != nil {
		return nil, err
	}
	if pointsPerEvent < 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Points per event cannot be negative")
	}
	return &EventType{
		BaseEntity:     shared.NewBaseEntity(),
		Name:           name,
		Description:    strings.TrimSpace(description),
		PointsPerEvent: pointsPerEvent,
	}, nil
}

// Update changes the entry. referenced tells whether any event points at it.
func (e *EventType) Update(name, description string, pointsPerEvent int64, referenced bool) error {
	name = NormalizeEventTypeName(name)
	if err := validateEventTypeName(name); err != nil {
		return err
	}
	if pointsPerEvent < 0 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Points per event cannot be negative")
	}
	if referenced && pointsPerEvent != e.PointsPerEvent {
		return shared.NewDomainError(shared.CodeConflict, "Points per event cannot change once events were recorded")
	}
	e.Name = name
	e.Description = strings.TrimSpace(description)
	e.PointsPerEvent = pointsPerEvent
	e.Touch()
	return nil
}

// NormalizeEventTypeName trims and case-folds a name after NFKC
// normalization, so full-width and compatibility forms map to ASCII
func NormalizeEventTypeName(name string) string {
	return cases.Fold().String(norm.NFKC.String(strings.TrimSpace(name)))
}

func validateEventTypeName(name string) error {
	if !eventTypeNameRegex.MatchString(name) {
		return shared.NewDomainError(shared.CodeInvalidInput,
			"Event type name must be 1-64 characters of lowercase letters, digits, '_', '.' or '-'")
	}
	return nil
}

// IsValidEventTypeName reports whether name, once normalized, is a legal
// event type name
func IsValidEventTypeName(name string) bool {
	return eventTypeNameRegex.MatchString(NormalizeEventTypeName(name))
}
