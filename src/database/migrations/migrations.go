// package migrations
package migrations

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"warehouseops/src/model"
)

// DataMigration tracks executed data migrations (like Django).
// Table name is fixed to avoid collisions with other models.
type DataMigration struct {
	ID        string    `gorm:"primaryKey;size:200;column:id"`
	AppliedAt time.Time `gorm:"not null;column:applied_at"`
}

func (DataMigration) TableName() string { return "data_migrations" }

func ensureDataMigrationsTable(db *gorm.DB) error {
	return db.AutoMigrate(&DataMigration{})
}

// RunOnce runs fn only if migrationID was not executed before.
// It records the migration as executed only after fn succeeds.
func RunOnce(db *gorm.DB, migrationID string, fn func(*gorm.DB) error) error {
	if db == nil {
		return nil
	}
	if migrationID == "" {
		return fmt.Errorf("migration id is empty")
	}
	if fn == nil {
		return fmt.Errorf("migration %q has nil fn", migrationID)
	}

	if err := ensureDataMigrationsTable(db); err != nil {
		return fmt.Errorf("ensure data migrations table: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var m DataMigration
		err := tx.First(&m, "id = ?", migrationID).Error
		if err == nil {
			// already applied
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check migration %q: %w", migrationID, err)
		}

		if err := fn(tx); err != nil {
			return fmt.Errorf("run migration %q: %w", migrationID, err)
		}

		rec := DataMigration{
			ID:        migrationID,
			AppliedAt: time.Now().UTC(),
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("record migration %q: %w", migrationID, err)
		}

		return nil
	})
}

// Run executes all data migrations that go beyond schema auto-migrations.
// Append new migrations at the bottom with a stable unique id.
func Run(db *gorm.DB) error {
	if db == nil {
		return nil
	}

	if err := RunOnce(db, "00001_backfill_sla_compliance_severity", backfillComplianceSeverity); err != nil {
		return err
	}

	if err := RunOnce(db, "00002_backfill_sla_limit_minutes", backfillSlaLimits); err != nil {
		return err
	}

	return nil
}

// backfillComplianceSeverity fills compliance_severity on rows written before the column existed.
func backfillComplianceSeverity(db *gorm.DB) error {
	var rows []model.SlaEvent
	if err := db.Where("compliance_severity IS NULL OR compliance_severity = ''").Find(&rows).Error; err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, row := range rows {
		end := now
		if row.ResolvedAt != nil {
			end = *row.ResolvedAt
		}
		sev := model.ComplianceSeverityFor(model.MinutesBetween(row.StartedAt, end), row.SlaLimitMinutes)
		if err := db.Model(&model.SlaEvent{}).
			Where("id = ?", row.ID).
			Update("compliance_severity", sev).Error; err != nil {
			return err
		}
	}

	return nil
}

// backfillSlaLimits copies the matrix limit onto rows that were created with a zero limit.
func backfillSlaLimits(db *gorm.DB) error {
	matrix := model.DefaultSlaMatrix()
	for t, limit := range matrix {
		if err := db.Model(&model.SlaEvent{}).
			Where("type = ? AND sla_limit_minutes = 0", t).
			Update("sla_limit_minutes", limit).Error; err != nil {
			return err
		}
	}

	return db.Model(&model.SlaEvent{}).
		Where("sla_limit_minutes = 0").
		Update("sla_limit_minutes", model.DefaultSlaLimitMinutes).Error
}
