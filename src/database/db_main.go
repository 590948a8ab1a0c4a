package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"warehouseops/src/database/migrations"
	"warehouseops/src/model"
)

// MainDB is the primary read/write database connection used by the application.
var MainDB *gorm.DB

// Models lists every table owned by this service, in AutoMigrate order.
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.Location{},
		&model.InventoryBalance{},
		&model.ReceivingDocument{},
		&model.ReceivingItem{},
		&model.ShippingOrder{},
		&model.ShippingLine{},
		&model.PutawayTask{},
		&model.CycleCountTask{},
		&model.SlaEvent{},
		&model.ActionLogEntry{},
		&migrations.DataMigration{},
	}
}

// InitMainDB initializes the main (read/write) database connection and runs migrations.
// This should be called once at application startup (e.g. in main()).
func InitMainDB() error {
	config := GetConfig()
	db, err := gorm.Open(postgres.Open(config.DatabaseURLMain),
		&gorm.Config{
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to connect to MainDB: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from MainDB: %w", err)
	}
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	// Assign to the global variable only after a successful connection.
	MainDB = db

	logrus.Info("[database] MainDB connection established")

	if err := Migrate(MainDB); err != nil {
		return err
	}

	logrus.Info("[database] MainDB migrations completed")

	return nil
}

// Migrate prepares legacy ledger rows, auto-migrates every model and runs data migrations.
func Migrate(db *gorm.DB) error {
	// The sla_events unique index cannot be created while duplicates exist.
	if db.Dialector.Name() == "postgres" {
		if err := migrations.PrepareSlaEventsTable(db); err != nil {
			return fmt.Errorf("failed to prepare sla_events: %w", err)
		}
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("failed to run data migrations: %w", err)
	}

	return nil
}
