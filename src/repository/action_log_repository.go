package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"warehouseops/src/database"
	"warehouseops/src/model"
)

// ActionLogRepository is append-only: it can insert and list, never update or delete.
type ActionLogRepository struct {
	db *gorm.DB
}

func NewActionLogRepository() *ActionLogRepository {
	logger.WithField("component", "ActionLogRepository").
		Info("Creating new ActionLogRepository with MainDB")

	return &ActionLogRepository{
		db: database.MainDB,
	}
}

func (r *ActionLogRepository) WithDB(db *gorm.DB) *ActionLogRepository {
	return &ActionLogRepository{db: db}
}

// Append persists a new audit row.
func (r *ActionLogRepository) Append(ctx context.Context, entry *model.ActionLogEntry) error {
	logger.WithFields(map[string]interface{}{
		"repo":           "ActionLogRepository",
		"op":             "Append",
		"exception_id":   entry.ExceptionID,
		"action_type":    entry.ActionType,
		"correlation_id": entry.CorrelationID,
	}).Debug("Appending action log entry")

	err := r.db.WithContext(ctx).Create(entry).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "ActionLogRepository",
			"op":           "Append",
			"exception_id": entry.ExceptionID,
		}).WithError(err).Error("Failed to append action log entry")

		return err
	}

	return nil
}

// ListByException returns the audit trail of one exception, oldest first.
func (r *ActionLogRepository) ListByException(ctx context.Context, exceptionID string) ([]model.ActionLogEntry, error) {
	var entries []model.ActionLogEntry

	err := r.db.WithContext(ctx).
		Where("exception_id = ?", exceptionID).
		Order("executed_at ASC, id ASC").
		Find(&entries).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "ActionLogRepository",
			"op":           "ListByException",
			"exception_id": exceptionID,
		}).WithError(err).Error("Failed to list action log entries")

		return nil, err
	}

	return entries, nil
}
