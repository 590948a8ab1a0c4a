package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"warehouseops/src/database"
	"warehouseops/src/model"
)

// ReceivingRepository reads receiving documents and performs the narrow unhold write.
type ReceivingRepository struct {
	db *gorm.DB
}

// NewReceivingRepository creates a repository over the read-only connection.
func NewReceivingRepository() *ReceivingRepository {
	logger.WithField("component", "ReceivingRepository").
		Info("Creating new ReceivingRepository with ReadOnlyDB")

	return &ReceivingRepository{
		db: database.ReadOnlyDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// The unhold path must be bound to MainDB this way.
func (r *ReceivingRepository) WithDB(db *gorm.DB) *ReceivingRepository {
	return &ReceivingRepository{db: db}
}

// FindActive returns documents that are in progress or on hold, with their lines and assignee.
func (r *ReceivingRepository) FindActive(ctx context.Context) ([]model.ReceivingDocument, error) {
	var docs []model.ReceivingDocument

	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("AssignedUser").
		Where("status IN ?", []string{model.ReceivingStatusInProgress, model.ReceivingStatusOnHold}).
		Order("id ASC").
		Find(&docs).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ReceivingRepository",
			"op":   "FindActive",
		}).WithError(err).Error("Failed to fetch active receiving documents")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "ReceivingRepository",
		"op":          "FindActive",
		"rows_return": len(docs),
	}).Debug("Active receiving documents fetched")

	return docs, nil
}

// FindForCompliance returns active documents plus those completed at or after since.
func (r *ReceivingRepository) FindForCompliance(ctx context.Context, since time.Time) ([]model.ReceivingDocument, error) {
	var docs []model.ReceivingDocument

	err := r.db.WithContext(ctx).
		Preload("AssignedUser").
		Where("status IN ? OR (status = ? AND completed_at >= ?)",
			[]string{model.ReceivingStatusInProgress, model.ReceivingStatusOnHold},
			model.ReceivingStatusCompleted, since).
		Order("id ASC").
		Find(&docs).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "ReceivingRepository",
			"op":    "FindForCompliance",
			"since": since,
		}).WithError(err).Error("Failed to fetch receiving documents for compliance")

		return nil, err
	}

	return docs, nil
}

// Unhold moves an ON_HOLD document back to IN_PROGRESS and clears its hold reason.
// It reports false when the document was not on hold.
func (r *ReceivingRepository) Unhold(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.ReceivingDocument{}).
		Where("id = ? AND status = ?", id, model.ReceivingStatusOnHold).
		Updates(map[string]interface{}{
			"status":      model.ReceivingStatusInProgress,
			"hold_reason": "",
		})

	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ReceivingRepository",
			"op":   "Unhold",
			"id":   id,
		}).WithError(res.Error).Error("Failed to unhold receiving document")

		return false, res.Error
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "ReceivingRepository",
		"op":       "Unhold",
		"id":       id,
		"affected": res.RowsAffected,
	}).Info("Receiving document unhold processed")

	return res.RowsAffected > 0, nil
}
