package migrations

import (
	"database/sql"
	"fmt"

	"gorm.io/gorm"
)

// PrepareSlaEventsTable collapses duplicate ledger rows left by writers that
// appended instead of upserting, so AutoMigrate can add the unique index on
// exception_id. For each id the resolved row wins, then the newest one.
func PrepareSlaEventsTable(db *gorm.DB) error {
	exists, err := tableExists(db, "sla_events")
	if err != nil {
		return fmt.Errorf("inspect sla_events: %w", err)
	}
	if !exists {
		return nil
	}

	err = db.Exec(`
		DELETE FROM sla_events
		WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY exception_id
					ORDER BY (resolved_at IS NULL) ASC, updated_at DESC, id DESC
				) AS rn
				FROM sla_events
			) ranked
			WHERE ranked.rn > 1
		)`).Error
	if err != nil {
		return fmt.Errorf("collapse duplicate sla_events: %w", err)
	}

	return nil
}

func tableExists(db *gorm.DB, table string) (bool, error) {
	var name string
	row := db.Raw(
		`SELECT table_name FROM information_schema.tables WHERE table_name = ?`,
		table,
	).Row()

	if scanErr := row.Scan(&name); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return false, nil
		}
		return false, scanErr
	}

	return true, nil
}
