package model

import "time"

// ActionLogEntry is the append-only audit row of an executed remediation.
// Rows are never updated or deleted.
type ActionLogEntry struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	CorrelationID    string    `gorm:"size:36;uniqueIndex" json:"correlation_id"`
	ExceptionID      string    `gorm:"size:100;not null;index" json:"exception_id"`
	ActionType       string    `gorm:"size:50;not null" json:"action_type"`
	ExecutedByUserID uint      `gorm:"index;not null" json:"executed_by_user_id"`
	ExecutedAt       time.Time `gorm:"not null" json:"executed_at"`
	Payload          string    `gorm:"type:text" json:"payload"`
}

func (ActionLogEntry) TableName() string {
	return "action_logs"
}

// ActionPayload is the request body of an executed action.
type ActionPayload struct {
	TargetUserID   *uint  `json:"target_user_id,omitempty"`
	TeamID         *uint  `json:"team_id,omitempty"`
	Policy         string `json:"policy,omitempty"`
	TargetLocation string `json:"target_location,omitempty"`
	Comment        string `json:"comment,omitempty"`
}
