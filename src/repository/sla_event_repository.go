package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"warehouseops/src/database"
	"warehouseops/src/model"
)

// SLA event status filters.
const (
	SlaStatusOpen     = "open"
	SlaStatusResolved = "resolved"
	SlaStatusBreached = "breached"
)

// SlaEventRepository is the durable ledger. Every write is either a single
// upsert keyed on exception_id or a conditional update guarded by
// resolved_at IS NULL, so resolved rows are never rewritten.
type SlaEventRepository struct {
	db *gorm.DB
}

func NewSlaEventRepository() *SlaEventRepository {
	logger.WithField("component", "SlaEventRepository").
		Info("Creating new SlaEventRepository with MainDB")

	return &SlaEventRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *SlaEventRepository) WithDB(db *gorm.DB) *SlaEventRepository {
	return &SlaEventRepository{db: db}
}

// SlaEventSearchOptions filters ledger reads. Zero values mean no filter.
type SlaEventSearchOptions struct {
	Types         []model.ExceptionType
	Severity      *model.ExceptionSeverity
	Zone          *string
	StartedAfter  *time.Time
	StartedBefore *time.Time
	Status        string
	Limit         int
	Offset        int
}

var openRowOnly = clause.Where{Exprs: []clause.Expression{
	clause.Expr{SQL: "sla_events.resolved_at IS NULL"},
}}

// breachedAtOnce keeps an existing breach timestamp and only fills it when missing.
var breachedAtOnce = clause.Assignment{
	Column: clause.Column{Name: "breached_at"},
	Value:  gorm.Expr("COALESCE(sla_events.breached_at, excluded.breached_at)"),
}

// keepWhenBlank returns assignments that take the incoming value only when it
// is non-empty, so a writer without context does not erase stored metadata.
func keepWhenBlank(columns ...string) []clause.Assignment {
	set := make([]clause.Assignment, 0, len(columns))
	for _, c := range columns {
		set = append(set, clause.Assignment{
			Column: clause.Column{Name: c},
			Value:  gorm.Expr("COALESCE(NULLIF(excluded." + c + ", ''), sla_events." + c + ")"),
		})
	}
	return set
}

func (r *SlaEventRepository) upsert(ctx context.Context, op string, ev *model.SlaEvent, columns []string, extra ...clause.Assignment) error {
	set := append(clause.AssignmentColumns(columns), breachedAtOnce)
	set = append(set, extra...)

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "exception_id"}},
		DoUpdates: set,
		Where:     openRowOnly,
	}).Create(ev).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "SlaEventRepository",
			"op":           op,
			"exception_id": ev.ExceptionID,
		}).WithError(err).Error("Failed to upsert sla event")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":         "SlaEventRepository",
		"op":           op,
		"exception_id": ev.ExceptionID,
	}).Debug("Sla event upserted")

	return nil
}

// UpsertRecorded inserts a row from the explicit record path or refreshes
// severity and metadata of the open row. started_at and the limit keep their first values.
func (r *SlaEventRepository) UpsertRecorded(ctx context.Context, ev *model.SlaEvent) error {
	return r.upsert(ctx, "UpsertRecorded", ev, []string{
		"severity", "compliance_severity", "updated_at",
	}, keepWhenBlank("zone", "location_code", "item_sku", "worker")...)
}

// UpsertReconciled writes a row re-derived from live state. Every timing
// field is replaced by the recomputed value except breached_at, which is set
// once. Metadata is only filled in, never blanked.
func (r *SlaEventRepository) UpsertReconciled(ctx context.Context, ev *model.SlaEvent) error {
	return r.upsert(ctx, "UpsertReconciled", ev, []string{
		"started_at", "severity", "compliance_severity", "duration_minutes",
		"resolved_at", "resolved_by", "executed_action", "updated_at",
	}, keepWhenBlank("zone", "location_code", "item_sku", "worker")...)
}

// FindByExceptionID returns (nil, nil) if no row exists.
func (r *SlaEventRepository) FindByExceptionID(ctx context.Context, exceptionID string) (*model.SlaEvent, error) {
	var ev model.SlaEvent

	err := r.db.WithContext(ctx).
		Where("exception_id = ?", exceptionID).
		First(&ev).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":         "SlaEventRepository",
			"op":           "FindByExceptionID",
			"exception_id": exceptionID,
		}).WithError(err).Error("Failed to fetch sla event")

		return nil, err
	}

	return &ev, nil
}

// SlaResolution carries the fields written when a row is closed.
type SlaResolution struct {
	ResolvedAt      time.Time
	ResolvedBy      string
	ExecutedAction  string
	DurationMinutes int
	BreachedAt      *time.Time
}

// Resolve closes the open row for exceptionID. It reports false when the row
// is unknown or was already resolved, in which case nothing is written.
func (r *SlaEventRepository) Resolve(ctx context.Context, exceptionID string, res SlaResolution) (bool, error) {
	updates := map[string]interface{}{
		"resolved_at":      res.ResolvedAt,
		"resolved_by":      res.ResolvedBy,
		"executed_action":  res.ExecutedAction,
		"duration_minutes": res.DurationMinutes,
	}
	if res.BreachedAt != nil {
		updates["breached_at"] = gorm.Expr("COALESCE(breached_at, ?)", *res.BreachedAt)
	}

	tx := r.db.WithContext(ctx).
		Model(&model.SlaEvent{}).
		Where("exception_id = ? AND resolved_at IS NULL", exceptionID).
		Updates(updates)

	if tx.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "SlaEventRepository",
			"op":           "Resolve",
			"exception_id": exceptionID,
		}).WithError(tx.Error).Error("Failed to resolve sla event")

		return false, tx.Error
	}

	logger.WithFields(map[string]interface{}{
		"repo":         "SlaEventRepository",
		"op":           "Resolve",
		"exception_id": exceptionID,
		"affected":     tx.RowsAffected,
	}).Info("Sla event resolve processed")

	return tx.RowsAffected > 0, nil
}

// Acknowledge stamps the first acknowledgement on an open row.
func (r *SlaEventRepository) Acknowledge(ctx context.Context, exceptionID, by string, at time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&model.SlaEvent{}).
		Where("exception_id = ? AND resolved_at IS NULL AND acknowledged_at IS NULL", exceptionID).
		Updates(map[string]interface{}{
			"acknowledged_at": at,
			"acknowledged_by": by,
		})

	if tx.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":         "SlaEventRepository",
			"op":           "Acknowledge",
			"exception_id": exceptionID,
		}).WithError(tx.Error).Error("Failed to acknowledge sla event")

		return false, tx.Error
	}

	return tx.RowsAffected > 0, nil
}

// ResolvedSince returns the ids of resolved rows of the given types closed at
// or after since.
func (r *SlaEventRepository) ResolvedSince(ctx context.Context, types []model.ExceptionType, since time.Time) (map[string]struct{}, error) {
	var ids []string

	err := r.db.WithContext(ctx).
		Model(&model.SlaEvent{}).
		Where("type IN ? AND resolved_at IS NOT NULL AND resolved_at >= ?", types, since).
		Pluck("exception_id", &ids).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "SlaEventRepository",
			"op":    "ResolvedSince",
			"since": since,
		}).WithError(err).Error("Failed to list resolved sla events")

		return nil, err
	}

	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// DeleteStale removes open rows of the given types not written since before.
// Resolved rows and rows of other types are left alone.
func (r *SlaEventRepository) DeleteStale(ctx context.Context, types []model.ExceptionType, before time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).
		Where("type IN ? AND resolved_at IS NULL AND updated_at < ?", types, before).
		Delete(&model.SlaEvent{})

	if tx.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "SlaEventRepository",
			"op":   "DeleteStale",
		}).WithError(tx.Error).Error("Failed to delete stale sla events")

		return 0, tx.Error
	}

	if tx.RowsAffected > 0 {
		logger.WithFields(map[string]interface{}{
			"repo":    "SlaEventRepository",
			"op":      "DeleteStale",
			"deleted": tx.RowsAffected,
		}).Info("Stale sla events deleted")
	}

	return tx.RowsAffected, nil
}

// Search lists ledger rows newest first.
func (r *SlaEventRepository) Search(ctx context.Context, options SlaEventSearchOptions) ([]model.SlaEvent, error) {
	q := r.db.WithContext(ctx).Model(&model.SlaEvent{})

	if len(options.Types) > 0 {
		q = q.Where("type IN ?", options.Types)
	}
	if options.Severity != nil {
		q = q.Where("severity = ?", *options.Severity)
	}
	if options.Zone != nil {
		q = q.Where("zone = ?", *options.Zone)
	}
	if options.StartedAfter != nil {
		q = q.Where("started_at >= ?", *options.StartedAfter)
	}
	if options.StartedBefore != nil {
		q = q.Where("started_at <= ?", *options.StartedBefore)
	}
	switch options.Status {
	case SlaStatusOpen:
		q = q.Where("resolved_at IS NULL")
	case SlaStatusResolved:
		q = q.Where("resolved_at IS NOT NULL")
	case SlaStatusBreached:
		q = q.Where("breached_at IS NOT NULL")
	}

	q = q.Order("started_at DESC, id DESC")
	if options.Limit > 0 {
		q = q.Limit(options.Limit)
	}
	if options.Offset > 0 {
		q = q.Offset(options.Offset)
	}

	var events []model.SlaEvent
	if err := q.Find(&events).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "SlaEventRepository",
			"op":     "Search",
			"status": options.Status,
		}).WithError(err).Error("Failed to search sla events")

		return nil, err
	}

	return events, nil
}
