package model

import (
	"time"

	"gorm.io/datatypes"
)

// RotationProfileRecord is a stored rotation profile. Steps keep the
// RotationCreator JSON layout.
type RotationProfileRecord struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string         `gorm:"uniqueIndex;size:64;not null" json:"name"`
	ClassName string         `gorm:"size:32" json:"class_name"`
	Steps     datatypes.JSON `json:"steps"`
	Source    string         `gorm:"size:255" json:"source"` // file path for imported profiles
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (RotationProfileRecord) TableName() string { return "rotation_profiles" }
