package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"warehouseops/src/database"
	"warehouseops/src/model"
)

// ShippingRepository reads outbound orders.
type ShippingRepository struct {
	db *gorm.DB
}

func NewShippingRepository() *ShippingRepository {
	logger.WithField("component", "ShippingRepository").
		Info("Creating new ShippingRepository with ReadOnlyDB")

	return &ShippingRepository{
		db: database.ReadOnlyDB,
	}
}

func (r *ShippingRepository) WithDB(db *gorm.DB) *ShippingRepository {
	return &ShippingRepository{db: db}
}

// FindActive returns orders being picked or waiting in staging.
func (r *ShippingRepository) FindActive(ctx context.Context) ([]model.ShippingOrder, error) {
	var orders []model.ShippingOrder

	err := r.db.WithContext(ctx).
		Preload("Lines").
		Preload("AssignedUser").
		Where("status IN ?", []string{model.ShippingStatusPicking, model.ShippingStatusStaged}).
		Order("id ASC").
		Find(&orders).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ShippingRepository",
			"op":   "FindActive",
		}).WithError(err).Error("Failed to fetch active shipping orders")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "ShippingRepository",
		"op":          "FindActive",
		"rows_return": len(orders),
	}).Debug("Active shipping orders fetched")

	return orders, nil
}

// FindForCompliance returns active orders plus those shipped at or after since.
func (r *ShippingRepository) FindForCompliance(ctx context.Context, since time.Time) ([]model.ShippingOrder, error) {
	var orders []model.ShippingOrder

	err := r.db.WithContext(ctx).
		Preload("AssignedUser").
		Where("status IN ? OR (status = ? AND shipped_at >= ?)",
			[]string{model.ShippingStatusPicking, model.ShippingStatusStaged},
			model.ShippingStatusShipped, since).
		Order("id ASC").
		Find(&orders).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "ShippingRepository",
			"op":    "FindForCompliance",
			"since": since,
		}).WithError(err).Error("Failed to fetch shipping orders for compliance")

		return nil, err
	}

	return orders, nil
}
