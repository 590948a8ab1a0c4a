package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"warehouseops/src/database"
	"warehouseops/src/model"
)

const defaultLocationBatchSize = 500

var errScanLimit = errors.New("location scan limit reached")

// LocationRepository reads storage locations and their fill.
type LocationRepository struct {
	db        *gorm.DB
	inventory *InventoryRepository
}

func NewLocationRepository() *LocationRepository {
	logger.WithField("component", "LocationRepository").
		Info("Creating new LocationRepository with ReadOnlyDB")

	return &LocationRepository{
		db:        database.ReadOnlyDB,
		inventory: NewInventoryRepository(),
	}
}

func (r *LocationRepository) WithDB(db *gorm.DB) *LocationRepository {
	return &LocationRepository{db: db, inventory: &InventoryRepository{db: db}}
}

// ListWithUsage pages through locations in primary-key order, attaching the
// stored quantity of each batch with a single aggregate query. At most
// maxEntities locations are returned when maxEntities > 0.
func (r *LocationRepository) ListWithUsage(ctx context.Context, batchSize, maxEntities int) ([]model.LocationUsage, error) {
	if batchSize <= 0 {
		batchSize = defaultLocationBatchSize
	}

	var (
		out   []model.LocationUsage
		batch []model.Location
	)

	res := r.db.WithContext(ctx).FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
		ids := make([]uint, 0, len(batch))
		for _, loc := range batch {
			ids = append(ids, loc.ID)
		}

		used, err := r.inventory.UsedByLocations(ctx, ids)
		if err != nil {
			return err
		}

		for _, loc := range batch {
			out = append(out, model.LocationUsage{Location: loc, Used: used[loc.ID]})
			if maxEntities > 0 && len(out) >= maxEntities {
				return errScanLimit
			}
		}
		return nil
	})

	if res.Error != nil {
		if errors.Is(res.Error, errScanLimit) {
			logger.WithFields(map[string]interface{}{
				"repo":  "LocationRepository",
				"op":    "ListWithUsage",
				"limit": maxEntities,
			}).Warn("Location scan truncated at limit")

			return out, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "LocationRepository",
			"op":   "ListWithUsage",
		}).WithError(res.Error).Error("Failed to scan locations")

		return nil, res.Error
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "LocationRepository",
		"op":          "ListWithUsage",
		"rows_return": len(out),
	}).Debug("Locations scanned")

	return out, nil
}

// FindByCode returns (nil, nil) when the code is unknown.
func (r *LocationRepository) FindByCode(ctx context.Context, code string) (*model.Location, error) {
	var loc model.Location

	err := r.db.WithContext(ctx).Where("code = ?", code).First(&loc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "LocationRepository",
			"op":   "FindByCode",
			"code": code,
		}).WithError(err).Error("Failed to fetch location by code")

		return nil, err
	}

	return &loc, nil
}
