package model

import "time"

// DefaultSlaLimitMinutes applies to exception types missing from the matrix.
const DefaultSlaLimitMinutes = 30

// Resolution markers written by reconciliation when the source document finished on its own.
const (
	ResolvedBySystem      = "system"
	ActionAutoCompleted   = "AUTO_COMPLETED"
	AcknowledgedBySystem  = "system"
	ExecutedActionUnknown = ""
)

// SlaMatrix maps an exception type to the minutes it may stay unresolved.
type SlaMatrix map[ExceptionType]int

// DefaultSlaMatrix is the allowed time per exception type.
func DefaultSlaMatrix() SlaMatrix {
	return SlaMatrix{
		ExceptionReceivingDelay:        30,
		ExceptionCapacityOverload:      10,
		ExceptionLateShipment:          30,
		ExceptionWorkerGap:             5,
		ExceptionCycleCountDiscrepancy: 60,
		ExceptionPutawayBlocked:        15,
	}
}

// Limit returns the allowed minutes for t, falling back to DefaultSlaLimitMinutes.
func (m SlaMatrix) Limit(t ExceptionType) int {
	if v, ok := m[t]; ok && v > 0 {
		return v
	}
	return DefaultSlaLimitMinutes
}

// BreachIn is max(0, limit - since).
func (m SlaMatrix) BreachIn(t ExceptionType, sinceMinutes int) int {
	left := m.Limit(t) - sinceMinutes
	if left < 0 {
		return 0
	}
	return left
}

// SlaEvent is the durable timing record of one exception id.
// A row moves OPEN -> OPEN(breached) -> RESOLVED and never re-opens.
type SlaEvent struct {
	ID                 uint               `gorm:"primaryKey" json:"id"`
	ExceptionID        string             `gorm:"size:100;not null;uniqueIndex" json:"exception_id"`
	Type               ExceptionType      `gorm:"size:50;not null;index" json:"type"`
	Severity           ExceptionSeverity  `gorm:"size:20" json:"severity"`
	ComplianceSeverity ComplianceSeverity `gorm:"size:10" json:"compliance_severity"`
	StartedAt          time.Time          `gorm:"not null;index" json:"started_at"`
	SlaLimitMinutes    int                `gorm:"not null" json:"sla_limit_minutes"`
	BreachedAt         *time.Time         `json:"breached_at,omitempty"`
	ResolvedAt         *time.Time         `gorm:"index" json:"resolved_at,omitempty"`
	ResolvedBy         *string            `gorm:"size:100" json:"resolved_by,omitempty"`
	ExecutedAction     *string            `gorm:"size:50" json:"executed_action,omitempty"`
	DurationMinutes    *int               `json:"duration_minutes,omitempty"`
	AcknowledgedAt     *time.Time         `json:"acknowledged_at,omitempty"`
	AcknowledgedBy     *string            `gorm:"size:100" json:"acknowledged_by,omitempty"`

	Zone         string `gorm:"size:50;index" json:"zone,omitempty"`
	LocationCode string `gorm:"size:50" json:"location_code,omitempty"`
	ItemSKU      string `gorm:"size:100" json:"item_sku,omitempty"`
	Worker       string `gorm:"size:150" json:"worker,omitempty"`
	Comments     string `gorm:"type:text" json:"comments,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SlaEvent) TableName() string {
	return "sla_events"
}

func (e *SlaEvent) IsResolved() bool {
	return e.ResolvedAt != nil
}

func (e *SlaEvent) IsBreached() bool {
	return e.BreachedAt != nil
}

// SlaMetadata is the context copied onto a ledger row.
type SlaMetadata struct {
	Zone         string `json:"zone,omitempty"`
	LocationCode string `json:"location_code,omitempty"`
	ItemSKU      string `json:"item_sku,omitempty"`
	Worker       string `json:"worker,omitempty"`
	Comments     string `json:"comments,omitempty"`
}
