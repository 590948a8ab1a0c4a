package sla

import (
	"context"
	"fmt"
	"time"

	"warehouseops/src/model"
)

// ManagedTypes are the exception types whose ledger rows are owned by reconciliation.
var ManagedTypes = []model.ExceptionType{
	model.ExceptionReceivingDelay,
	model.ExceptionLateShipment,
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Observed int   `json:"observed"`
	Closed   int   `json:"closed"`
	Deleted  int64 `json:"deleted"`
}

// Reconcile re-derives RECEIVING_DELAY and LATE_SHIPMENT rows from live
// documents and orders instead of trusting incremental writers. Every row is
// an upsert on exception_id, so running it twice, or concurrently, converges
// on the same state. Sources whose row is already resolved are skipped.
// Open rows of those two types that this pass did not write are deleted;
// rows of any other type are never touched here.
func (t *Tracker) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	now := t.now().UTC()
	since := now.Add(-t.config.Lookback)

	docs, err := t.receiving.FindForCompliance(ctx, since)
	if err != nil {
		return report, fmt.Errorf("load receiving documents: %w", err)
	}
	orders, err := t.shipping.FindForCompliance(ctx, since)
	if err != nil {
		return report, fmt.Errorf("load shipping orders: %w", err)
	}
	closed, err := t.ledger.ResolvedSince(ctx, ManagedTypes, since)
	if err != nil {
		return report, fmt.Errorf("load resolved sla events: %w", err)
	}

	events := make([]*model.SlaEvent, 0, len(docs)+len(orders))
	for i := range docs {
		events = append(events, t.receivingEvent(docs[i], now))
	}
	for i := range orders {
		events = append(events, t.shippingEvent(orders[i], now))
	}

	for _, ev := range events {
		if _, done := closed[ev.ExceptionID]; done {
			continue
		}
		if err := t.ledger.UpsertReconciled(ctx, ev); err != nil {
			return report, fmt.Errorf("reconcile %s: %w", ev.ExceptionID, err)
		}
		report.Observed++
		if ev.ResolvedAt != nil {
			report.Closed++
		}
	}

	deleted, err := t.ledger.DeleteStale(ctx, ManagedTypes, now)
	if err != nil {
		return report, fmt.Errorf("delete unobserved sla events: %w", err)
	}
	report.Deleted = deleted

	t.log.WithFields(map[string]interface{}{
		"op":       "Reconcile",
		"observed": report.Observed,
		"closed":   report.Closed,
		"skipped":  len(events) - report.Observed,
		"deleted":  report.Deleted,
	}).Debug("Sla ledger reconciled")

	return report, nil
}

func (t *Tracker) receivingEvent(doc model.ReceivingDocument, now time.Time) *model.SlaEvent {
	start := doc.CreatedAt
	if doc.StartedAt != nil {
		start = *doc.StartedAt
	}

	var completedAt *time.Time
	if doc.Status == model.ReceivingStatusCompleted && doc.CompletedAt != nil {
		completedAt = doc.CompletedAt
	}

	ev := t.derivedEvent(model.ReceivingDelayKey(doc.ID).String(), model.ExceptionReceivingDelay, start, completedAt, now)
	ev.Severity = model.ReceivingSeverity(doc.Status, *ev.DurationMinutes)
	if doc.AssignedUser != nil {
		ev.Worker = doc.AssignedUser.Name
	}
	if doc.HoldReason != "" {
		ev.Comments = "on hold: " + doc.HoldReason
	}
	return ev
}

func (t *Tracker) shippingEvent(order model.ShippingOrder, now time.Time) *model.SlaEvent {
	start := order.PhaseStart()

	var shippedAt *time.Time
	if order.Status == model.ShippingStatusShipped && order.ShippedAt != nil {
		shippedAt = order.ShippedAt
	}

	ev := t.derivedEvent(model.LateShipmentKey(order.ID).String(), model.ExceptionLateShipment, start, shippedAt, now)
	ev.Severity = model.ShippingSeverity(*ev.DurationMinutes)
	if order.AssignedUser != nil {
		ev.Worker = order.AssignedUser.Name
	}
	return ev
}

// derivedEvent computes the timing fields of a row from its source window.
// A non-nil end closes the row as completed by the system.
func (t *Tracker) derivedEvent(id string, typ model.ExceptionType, start time.Time, end *time.Time, now time.Time) *model.SlaEvent {
	start = start.UTC()
	until := now
	if end != nil {
		until = end.UTC()
	}

	limit := t.matrix.Limit(typ)
	elapsed := model.MinutesBetween(start, until)

	ev := &model.SlaEvent{
		ExceptionID:        id,
		Type:               typ,
		ComplianceSeverity: model.ComplianceSeverityFor(elapsed, limit),
		StartedAt:          start,
		SlaLimitMinutes:    limit,
		BreachedAt:         breachedAt(start, until, limit),
		DurationMinutes:    &elapsed,
		UpdatedAt:          now,
	}

	if end != nil {
		resolvedAt := until
		by := model.ResolvedBySystem
		action := model.ActionAutoCompleted
		ev.ResolvedAt = &resolvedAt
		ev.ResolvedBy = &by
		ev.ExecutedAction = &action
	}

	return ev
}
