package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"warehouseops/src/database"
	"warehouseops/src/model"
)

type InventoryRepository struct {
	db *gorm.DB
}

func NewInventoryRepository() *InventoryRepository {
	return &InventoryRepository{
		db: database.ReadOnlyDB,
	}
}

func (r *InventoryRepository) WithDB(db *gorm.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// ByLocation returns the balances stored in one location.
func (r *InventoryRepository) ByLocation(ctx context.Context, locationID uint) ([]model.InventoryBalance, error) {
	var balances []model.InventoryBalance

	err := r.db.WithContext(ctx).
		Where("location_id = ? AND qty <> 0", locationID).
		Order("item_id ASC").
		Find(&balances).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "InventoryRepository",
			"op":          "ByLocation",
			"location_id": locationID,
		}).WithError(err).Error("Failed to fetch inventory by location")

		return nil, err
	}

	return balances, nil
}

type locationUsedRow struct {
	LocationID uint
	Used       int
}

// UsedByLocations sums stored quantity per location id. Missing ids mean zero.
func (r *InventoryRepository) UsedByLocations(ctx context.Context, ids []uint) (map[uint]int, error) {
	used := make(map[uint]int, len(ids))
	if len(ids) == 0 {
		return used, nil
	}

	var rows []locationUsedRow
	err := r.db.WithContext(ctx).
		Model(&model.InventoryBalance{}).
		Select("location_id, COALESCE(SUM(qty), 0) AS used").
		Where("location_id IN ?", ids).
		Group("location_id").
		Scan(&rows).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "InventoryRepository",
			"op":    "UsedByLocations",
			"count": len(ids),
		}).WithError(err).Error("Failed to aggregate inventory usage")

		return nil, err
	}

	for _, row := range rows {
		used[row.LocationID] = row.Used
	}

	return used, nil
}
