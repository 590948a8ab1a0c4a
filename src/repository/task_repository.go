package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"warehouseops/src/database"
	"warehouseops/src/model"
)

// TaskRepository reads put-away and cycle-count tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository() *TaskRepository {
	logger.WithField("component", "TaskRepository").
		Info("Creating new TaskRepository with ReadOnlyDB")

	return &TaskRepository{
		db: database.ReadOnlyDB,
	}
}

func (r *TaskRepository) WithDB(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// PutawayByStatus returns put-away tasks in the given status with their assignee.
func (r *TaskRepository) PutawayByStatus(ctx context.Context, status string) ([]model.PutawayTask, error) {
	var tasks []model.PutawayTask

	err := r.db.WithContext(ctx).
		Preload("AssignedUser").
		Where("status = ?", status).
		Order("id ASC").
		Find(&tasks).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TaskRepository",
			"op":     "PutawayByStatus",
			"status": status,
		}).WithError(err).Error("Failed to fetch put-away tasks")

		return nil, err
	}

	return tasks, nil
}

// CycleCountByStatus returns cycle-count tasks in the given status.
func (r *TaskRepository) CycleCountByStatus(ctx context.Context, status string) ([]model.CycleCountTask, error) {
	var tasks []model.CycleCountTask

	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("id ASC").
		Find(&tasks).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TaskRepository",
			"op":     "CycleCountByStatus",
			"status": status,
		}).WithError(err).Error("Failed to fetch cycle-count tasks")

		return nil, err
	}

	return tasks, nil
}
