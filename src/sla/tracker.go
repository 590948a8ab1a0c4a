package sla

import (
	"context"
	"fmt"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"warehouseops/src/apperrors"
	"warehouseops/src/model"
	"warehouseops/src/repository"
)

// Ledger is the durable store behind the tracker.
type Ledger interface {
	UpsertRecorded(ctx context.Context, ev *model.SlaEvent) error
	UpsertReconciled(ctx context.Context, ev *model.SlaEvent) error
	FindByExceptionID(ctx context.Context, exceptionID string) (*model.SlaEvent, error)
	Resolve(ctx context.Context, exceptionID string, res repository.SlaResolution) (bool, error)
	Acknowledge(ctx context.Context, exceptionID, by string, at time.Time) (bool, error)
	ResolvedSince(ctx context.Context, types []model.ExceptionType, since time.Time) (map[string]struct{}, error)
	DeleteStale(ctx context.Context, types []model.ExceptionType, before time.Time) (int64, error)
	Search(ctx context.Context, options repository.SlaEventSearchOptions) ([]model.SlaEvent, error)
}

// ReceivingSource lists receiving documents relevant to compliance.
type ReceivingSource interface {
	FindForCompliance(ctx context.Context, since time.Time) ([]model.ReceivingDocument, error)
}

// ShippingSource lists shipping orders relevant to compliance.
type ShippingSource interface {
	FindForCompliance(ctx context.Context, since time.Time) ([]model.ShippingOrder, error)
}

// Tracker maintains the SLA ledger.
type Tracker struct {
	ledger    Ledger
	receiving ReceivingSource
	shipping  ShippingSource
	matrix    model.SlaMatrix
	config    Config
	now       func() time.Time
	log       *logger.Entry
}

func NewTracker(ledger Ledger, receiving ReceivingSource, shipping ShippingSource, config Config) *Tracker {
	return &Tracker{
		ledger:    ledger,
		receiving: receiving,
		shipping:  shipping,
		matrix:    model.DefaultSlaMatrix(),
		config:    config,
		now:       time.Now,
		log:       logger.WithField("component", "SlaTracker"),
	}
}

// WithClock replaces the time source. Intended for tests and replays.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	c := *t
	c.now = now
	return &c
}

// Matrix exposes the SLA matrix used for limits.
func (t *Tracker) Matrix() model.SlaMatrix {
	return t.matrix
}

// RecordInput is the explicit record call made for ad-hoc exception types.
type RecordInput struct {
	ExceptionID string
	Type        model.ExceptionType
	Severity    model.ExceptionSeverity
	StartedAt   time.Time
	Metadata    model.SlaMetadata
}

// RecordFromException builds a RecordInput from a detected exception.
// startedAt is derived from since_minutes relative to now.
func RecordFromException(e model.Exception, now time.Time) RecordInput {
	worker := ""
	if e.AssignedWorker != nil {
		worker = e.AssignedWorker.Name
	}
	return RecordInput{
		ExceptionID: e.ID,
		Type:        e.Type,
		Severity:    e.Severity,
		StartedAt:   now.Add(-time.Duration(e.SinceMinutes) * time.Minute),
		Metadata: model.SlaMetadata{
			Zone:         e.Zone,
			LocationCode: e.LocationCode,
			ItemSKU:      e.ItemSKU,
			Worker:       worker,
			Comments:     e.Detail,
		},
	}
}

// Record upserts the row for in.ExceptionID. A new row is flagged breached
// right away when it already started more than the limit ago. Resolved rows
// are returned unchanged.
func (t *Tracker) Record(ctx context.Context, in RecordInput) (*model.SlaEvent, error) {
	if strings.TrimSpace(in.ExceptionID) == "" {
		return nil, fmt.Errorf("%w: exception id is required", apperrors.ErrValidation)
	}
	if !in.Severity.Valid() {
		return nil, fmt.Errorf("%w: invalid severity %q", apperrors.ErrValidation, in.Severity)
	}
	if in.StartedAt.IsZero() {
		return nil, fmt.Errorf("%w: started_at is required", apperrors.ErrValidation)
	}

	now := t.now().UTC()
	started := in.StartedAt.UTC()
	limit := t.matrix.Limit(in.Type)

	ev := &model.SlaEvent{
		ExceptionID:        in.ExceptionID,
		Type:               in.Type,
		Severity:           in.Severity,
		ComplianceSeverity: model.ComplianceSeverityFor(model.MinutesBetween(started, now), limit),
		StartedAt:          started,
		SlaLimitMinutes:    limit,
		BreachedAt:         breachedAt(started, now, limit),
		Zone:               in.Metadata.Zone,
		LocationCode:       in.Metadata.LocationCode,
		ItemSKU:            in.Metadata.ItemSKU,
		Worker:             in.Metadata.Worker,
		Comments:           in.Metadata.Comments,
		UpdatedAt:          now,
	}

	if err := t.ledger.UpsertRecorded(ctx, ev); err != nil {
		return nil, fmt.Errorf("record sla event %s: %w", in.ExceptionID, err)
	}

	stored, err := t.ledger.FindByExceptionID(ctx, in.ExceptionID)
	if err != nil {
		return nil, fmt.Errorf("reload sla event %s: %w", in.ExceptionID, err)
	}

	t.log.WithFields(map[string]interface{}{
		"op":           "Record",
		"exception_id": in.ExceptionID,
		"type":         in.Type,
		"breached":     stored != nil && stored.IsBreached(),
	}).Debug("Sla event recorded")

	return stored, nil
}

// Resolve closes the row. It returns nil without writing when the id is
// unknown or already resolved. When no breach was recorded but the duration
// alone exceeds the limit, breached_at is back-filled to started_at + limit.
func (t *Tracker) Resolve(ctx context.Context, exceptionID, resolvedBy, action string, resolvedAt time.Time) (*model.SlaEvent, error) {
	ev, err := t.ledger.FindByExceptionID(ctx, exceptionID)
	if err != nil {
		return nil, fmt.Errorf("load sla event %s: %w", exceptionID, err)
	}
	if ev == nil || ev.IsResolved() {
		t.log.WithFields(map[string]interface{}{
			"op":           "Resolve",
			"exception_id": exceptionID,
			"known":        ev != nil,
		}).Debug("Resolve skipped, nothing open")

		return nil, nil
	}

	resolvedAt = resolvedAt.UTC()
	duration := model.MinutesBetween(ev.StartedAt, resolvedAt)

	res := repository.SlaResolution{
		ResolvedAt:      resolvedAt,
		ResolvedBy:      resolvedBy,
		ExecutedAction:  action,
		DurationMinutes: duration,
	}
	if ev.BreachedAt == nil && duration > ev.SlaLimitMinutes {
		b := ev.StartedAt.Add(time.Duration(ev.SlaLimitMinutes) * time.Minute)
		res.BreachedAt = &b
	}

	ok, err := t.ledger.Resolve(ctx, exceptionID, res)
	if err != nil {
		return nil, fmt.Errorf("resolve sla event %s: %w", exceptionID, err)
	}
	if !ok {
		// Another caller closed it between the read and the write.
		return nil, nil
	}

	t.log.WithFields(map[string]interface{}{
		"op":               "Resolve",
		"exception_id":     exceptionID,
		"resolved_by":      resolvedBy,
		"action":           action,
		"duration_minutes": duration,
	}).Info("Sla event resolved")

	return t.ledger.FindByExceptionID(ctx, exceptionID)
}

// Acknowledge marks an open row as seen by an operator. Returns nil when
// there is no open, unacknowledged row.
func (t *Tracker) Acknowledge(ctx context.Context, exceptionID, by string, at time.Time) (*model.SlaEvent, error) {
	ok, err := t.ledger.Acknowledge(ctx, exceptionID, by, at.UTC())
	if err != nil {
		return nil, fmt.Errorf("acknowledge sla event %s: %w", exceptionID, err)
	}
	if !ok {
		return nil, nil
	}

	t.log.WithFields(map[string]interface{}{
		"op":           "Acknowledge",
		"exception_id": exceptionID,
		"by":           by,
	}).Info("Sla event acknowledged")

	return t.ledger.FindByExceptionID(ctx, exceptionID)
}

// breachedAt returns started+limit when the elapsed time to end is strictly over the limit.
func breachedAt(started, end time.Time, limitMinutes int) *time.Time {
	limit := time.Duration(limitMinutes) * time.Minute
	if end.Sub(started) <= limit {
		return nil
	}
	b := started.Add(limit)
	return &b
}
