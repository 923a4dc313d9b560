package models

import (
	"encoding/json"
	"time"

	"github.com/meterly/backend/internal/domain/integration"
)

// IntegrationModel is the persistence model for webhook integrations.
// Events is stored as a JSON array.
type IntegrationModel struct {
	BaseModel
	Name            string `gorm:"type:varchar(100);not null"`
	URL             string `gorm:"type:varchar(2048);not null"`
	EventsJSON      string `gorm:"column:events;type:text;not null"`
	Secret          string `gorm:"type:varchar(255)"`
	Active          bool   `gorm:"not null;default:true;index"`
	LastTriggeredAt *time.Time
}

// TableName returns the table name for GORM
func (IntegrationModel) TableName() string {
	return "integrations"
}

// ToDomain converts the persistence model to a domain Integration.
func (m *IntegrationModel) ToDomain() *integration.Integration {
	in := &integration.Integration{
		BaseEntity:      m.BaseModel.ToDomain(),
		Name:            m.Name,
		URL:             m.URL,
		Events:          make([]string, 0),
		Secret:          m.Secret,
		Active:          m.Active,
		LastTriggeredAt: m.LastTriggeredAt,
	}
	if m.EventsJSON != "" {
		_ = json.Unmarshal([]byte(m.EventsJSON), &in.Events)
	}
	return in
}

// IntegrationModelFromDomain creates a model from a domain Integration.
func IntegrationModelFromDomain(in *integration.Integration) *IntegrationModel {
	m := &IntegrationModel{
		Name:            in.Name,
		URL:             in.URL,
		EventsJSON:      "[]",
		Secret:          in.Secret,
		Active:          in.Active,
		LastTriggeredAt: in.LastTriggeredAt,
	}
	if b, err := json.Marshal(in.Events); err == nil {
		m.EventsJSON = string(b)
	}
	m.FromDomainBaseEntity(in.BaseEntity)
	return m
}
