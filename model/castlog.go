package model

import "time"

// CastLog records one dispatched rotation decision.
type CastLog struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DecisionID string    `gorm:"index:idx_cast_decision;size:36;not null" json:"decision_id"`
	TraceID    string    `gorm:"size:36" json:"trace_id"`
	Profile    string    `gorm:"index:idx_cast_profile;size:64" json:"profile"`
	SpellID    uint32    `gorm:"not null" json:"spell_id"`
	SpellName  string    `gorm:"size:64" json:"spell_name"`
	TargetGUID string    `gorm:"size:18" json:"target_guid"`
	Priority   int       `json:"priority"`
	Accepted   bool      `json:"accepted"`
	Source     string    `gorm:"size:16" json:"source"` // rotation | fishing | api
	Error      string    `gorm:"type:text" json:"error"`
	CreatedAt  time.Time `gorm:"index:idx_cast_created;autoCreateTime:milli" json:"created_at"`
}
