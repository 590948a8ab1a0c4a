package exceptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"warehouseops/src/model"
)

func (d *Detector) receivingDelays(ctx context.Context, now time.Time) ([]model.Exception, error) {
	docs, err := d.readers.Receiving.FindActive(ctx)
	if err != nil {
		return nil, err
	}

	var out []model.Exception
	for _, doc := range docs {
		start := doc.CreatedAt
		if doc.StartedAt != nil {
			start = *doc.StartedAt
		}
		since := model.MinutesBetween(start, now)

		onHold := doc.Status == model.ReceivingStatusOnHold
		if !onHold && !(doc.Status == model.ReceivingStatusInProgress && since >= model.ReceivingDelayThreshold) {
			continue
		}

		var missing, incomplete int
		var sku, location string
		for _, item := range doc.Items {
			if item.MissingLocation() {
				missing++
			}
			if item.Incomplete() {
				incomplete++
				if sku == "" {
					sku = item.ItemSKU
				}
			}
			if location == "" && item.LocationCode != "" {
				location = item.LocationCode
			}
		}

		actions := []string{model.ActionAssignOther}
		if onHold {
			actions = append(actions, model.ActionUnhold)
		}
		if missing > 0 {
			actions = append(actions, model.ActionRelocateStock)
		}

		detail := fmt.Sprintf("%d lines without location, %d lines incomplete", missing, incomplete)
		if onHold {
			reason := doc.HoldReason
			if reason == "" {
				reason = "no reason given"
			}
			detail = fmt.Sprintf("on hold (%s); %s", reason, detail)
		}

		key := model.ReceivingDelayKey(doc.ID)
		out = append(out, model.Exception{
			ID:             key.String(),
			Type:           key.Type,
			Severity:       model.ReceivingSeverity(doc.Status, since),
			SinceMinutes:   since,
			AssignedWorker: snapshot(doc.AssignedUser, now),
			Actions:        actions,
			Detail:         detail,
			Task:           key.Task,
			WorkerID:       userID(doc.AssignedUser),
			LocationCode:   location,
			ItemSKU:        sku,
		})
	}
	return out, nil
}

func (d *Detector) capacityOverloads(ctx context.Context, _ time.Time) ([]model.Exception, error) {
	usages, err := d.readers.Locations.ListWithUsage(ctx, d.config.ScanBatchSize, d.config.ScanMaxEntities)
	if err != nil {
		return nil, err
	}

	var out []model.Exception
	for _, u := range usages {
		if !model.Overloaded(u.Used, u.Location.Capacity) {
			continue
		}
		ratio, _ := FillRatio(u.Used, u.Location.Capacity)

		key := model.CapacityOverloadKey(u.Location.ID)
		out = append(out, model.Exception{
			ID:           key.String(),
			Type:         key.Type,
			Severity:     model.CapacitySeverity(u.Used, u.Location.Capacity),
			SinceMinutes: 0,
			Actions:      []string{model.ActionRelocateStock},
			Detail: fmt.Sprintf("location %s holds %d of %d (%s%%)",
				u.Location.Code, u.Used, u.Location.Capacity, ratio.Mul(decimal.NewFromInt(100)).StringFixed(1)),
			Task:         key.Task,
			LocationCode: u.Location.Code,
			Zone:         u.Location.Zone,
		})
	}
	return out, nil
}

func (d *Detector) blockedPutaways(ctx context.Context, now time.Time) ([]model.Exception, error) {
	tasks, err := d.readers.Tasks.PutawayByStatus(ctx, model.TaskStatusBlocked)
	if err != nil {
		return nil, err
	}

	out := make([]model.Exception, 0, len(tasks))
	for _, task := range tasks {
		detail := fmt.Sprintf("pallet %s blocked", task.PalletID)
		if notes := strings.TrimSpace(task.Notes); notes != "" {
			detail += ": " + notes
		}

		key := model.PutawayBlockedKey(task.ID)
		out = append(out, model.Exception{
			ID:             key.String(),
			Type:           key.Type,
			Severity:       model.SeverityMedium,
			SinceMinutes:   model.MinutesBetween(task.CreatedAt, now),
			AssignedWorker: snapshot(task.AssignedUser, now),
			Actions:        []string{model.ActionAssignOther, model.ActionRelocateStock},
			Detail:         detail,
			Task:           key.Task,
			WorkerID:       userID(task.AssignedUser),
			LocationCode:   task.LocationCode,
		})
	}
	return out, nil
}

func (d *Detector) lateShipments(ctx context.Context, now time.Time) ([]model.Exception, error) {
	orders, err := d.readers.Shipping.FindActive(ctx)
	if err != nil {
		return nil, err
	}

	var out []model.Exception
	for _, order := range orders {
		if order.Status != model.ShippingStatusPicking && order.Status != model.ShippingStatusStaged {
			continue
		}

		since := model.MinutesBetween(order.PhaseStart(), now)
		if since < model.LateShipmentThreshold {
			continue
		}

		var pickFrom string
		for _, line := range order.Lines {
			if line.PickedQty < line.Qty && line.PickFromLC != "" {
				pickFrom = line.PickFromLC
				break
			}
		}

		key := model.LateShipmentKey(order.ID)
		out = append(out, model.Exception{
			ID:             key.String(),
			Type:           key.Type,
			Severity:       model.ShippingSeverity(since),
			SinceMinutes:   since,
			AssignedWorker: snapshot(order.AssignedUser, now),
			Actions:        []string{model.ActionReassignPick, model.ActionPrioritize},
			Detail:         fmt.Sprintf("order %s for %d min, %d lines", strings.ToLower(order.Status), since, len(order.Lines)),
			Task:           key.Task,
			WorkerID:       userID(order.AssignedUser),
			LocationCode:   pickFrom,
		})
	}
	return out, nil
}

func (d *Detector) workerGaps(ctx context.Context, now time.Time) ([]model.Exception, error) {
	users, err := d.readers.Users.All(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := d.readers.Receiving.FindActive(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := d.readers.Shipping.FindActive(ctx)
	if err != nil {
		return nil, err
	}

	type held struct {
		task  model.TaskRef
		start time.Time
	}
	holding := map[uint][]held{}
	for _, doc := range docs {
		if doc.Status != model.ReceivingStatusInProgress || doc.AssignedUserID == nil {
			continue
		}
		holding[*doc.AssignedUserID] = append(holding[*doc.AssignedUserID], held{
			task:  model.TaskRef{Kind: model.TaskKindReceiving, ID: doc.ID},
			start: firstSet(doc.StartedAt, &doc.CreatedAt),
		})
	}
	for _, order := range orders {
		if order.Status != model.ShippingStatusPicking || order.AssignedUserID == nil {
			continue
		}
		holding[*order.AssignedUserID] = append(holding[*order.AssignedUserID], held{
			task:  model.TaskRef{Kind: model.TaskKindShipping, ID: order.ID},
			start: firstSet(order.StartedAt, &order.CreatedAt),
		})
	}

	var out []model.Exception
	for i := range users {
		u := &users[i]
		if online(u, now) {
			continue
		}
		for _, h := range holding[u.ID] {
			silentSince := h.start
			if u.LastActivity != nil && u.LastActivity.After(silentSince) {
				silentSince = *u.LastActivity
			}

			key := model.WorkerGapKey(u.ID, h.task)
			out = append(out, model.Exception{
				ID:             key.String(),
				Type:           key.Type,
				Severity:       model.SeverityHigh,
				SinceMinutes:   model.MinutesBetween(silentSince, now),
				AssignedWorker: snapshot(u, now),
				Actions:        []string{model.ActionAssignOther},
				Detail:         fmt.Sprintf("%s has no heartbeat while holding %s", u.Name, model.ExceptionKey{Task: h.task}.String()),
				Task:           h.task,
				WorkerID:       u.ID,
			})
		}
	}
	return out, nil
}

func (d *Detector) cycleCountDiscrepancies(ctx context.Context, now time.Time) ([]model.Exception, error) {
	tasks, err := d.readers.Tasks.CycleCountByStatus(ctx, model.TaskStatusCompleted)
	if err != nil {
		return nil, err
	}

	var out []model.Exception
	for _, task := range tasks {
		since := model.MinutesBetween(task.UpdatedAt, now)
		if since < model.CycleCountStaleThreshold {
			continue
		}

		key := model.CycleCountKey(task.ID)
		out = append(out, model.Exception{
			ID:           key.String(),
			Type:         key.Type,
			Severity:     model.SeverityMedium,
			SinceMinutes: since,
			Actions:      []string{model.ActionReconcile, model.ActionAcknowledge},
			Detail:       fmt.Sprintf("count of %s awaiting reconciliation", task.TargetCode),
			Task:         key.Task,
			LocationCode: task.TargetCode,
		})
	}
	return out, nil
}

// FillRatio is used/capacity, unrounded. Callers round only what they display.
// Locations without a positive capacity have no ratio.
func FillRatio(used, capacity int) (decimal.Decimal, bool) {
	if capacity <= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromInt(int64(used)).
		Div(decimal.NewFromInt(int64(capacity))), true
}

func online(u *model.User, now time.Time) bool {
	return u.LastActivity != nil && now.Sub(*u.LastActivity) <= model.HeartbeatTimeout
}

func snapshot(u *model.User, now time.Time) *model.WorkerSnapshot {
	if u == nil {
		return nil
	}
	return &model.WorkerSnapshot{
		ID:     u.ID,
		Name:   u.Name,
		Shift:  u.Shift,
		Online: online(u, now),
	}
}

func userID(u *model.User) uint {
	if u == nil {
		return 0
	}
	return u.ID
}

func firstSet(candidates ...*time.Time) time.Time {
	for _, c := range candidates {
		if c != nil && !c.IsZero() {
			return *c
		}
	}
	return time.Time{}
}
