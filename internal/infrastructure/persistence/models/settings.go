package models

import "time"

// SettingModel is one key/value runtime setting.
type SettingModel struct {
	Key       string    `gorm:"type:varchar(64);primary_key"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SettingModel) TableName() string {
	return "settings"
}
