package exceptions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warehouseops/src/apperrors"
	"warehouseops/src/detached"
	"warehouseops/src/model"
	"warehouseops/src/sla"
)

var now = time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)

func ago(m int) *time.Time {
	t := now.Add(-time.Duration(m) * time.Minute)
	return &t
}

func uptr(v uint) *uint { return &v }

type fakeReaders struct {
	docs      []model.ReceivingDocument
	orders    []model.ShippingOrder
	putaways  []model.PutawayTask
	counts    []model.CycleCountTask
	locations []model.LocationUsage
	users     []model.User
	err       error

	scanBatch, scanMax int
}

type receivingFake struct{ *fakeReaders }

func (r receivingFake) FindActive(ctx context.Context) ([]model.ReceivingDocument, error) {
	return r.docs, r.err
}

type shippingFake struct{ *fakeReaders }

func (s shippingFake) FindActive(ctx context.Context) ([]model.ShippingOrder, error) {
	return s.orders, nil
}

func (f *fakeReaders) PutawayByStatus(ctx context.Context, status string) ([]model.PutawayTask, error) {
	return f.putaways, nil
}

func (f *fakeReaders) CycleCountByStatus(ctx context.Context, status string) ([]model.CycleCountTask, error) {
	return f.counts, nil
}

func (f *fakeReaders) ListWithUsage(ctx context.Context, batchSize, maxEntities int) ([]model.LocationUsage, error) {
	f.scanBatch, f.scanMax = batchSize, maxEntities
	return f.locations, nil
}

func (f *fakeReaders) All(ctx context.Context) ([]model.User, error) {
	return f.users, nil
}

type recorderFake struct {
	mu    sync.Mutex
	calls []sla.RecordInput
	err   error
}

func (r *recorderFake) Record(ctx context.Context, in sla.RecordInput) (*model.SlaEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, in)
	return nil, r.err
}

func newTestDetector(f *fakeReaders, rec *recorderFake) *Detector {
	var recorder Recorder
	if rec != nil {
		recorder = rec
	}
	d := NewDetector(Readers{
		Receiving: receivingFake{f},
		Shipping:  shippingFake{f},
		Tasks:     f,
		Locations: f,
		Users:     f,
	}, recorder, detached.NewSyncRunner(), Config{ScanBatchSize: 50, ScanMaxEntities: 200})
	return d.WithClock(func() time.Time { return now })
}

func byID(list []model.Exception) map[string]model.Exception {
	out := make(map[string]model.Exception, len(list))
	for _, e := range list {
		out[e.ID] = e
	}
	return out
}

func TestReceivingDelayRule(t *testing.T) {
	f := &fakeReaders{
		docs: []model.ReceivingDocument{
			{ID: 1, Status: model.ReceivingStatusInProgress, StartedAt: ago(19)},
			{ID: 2, Status: model.ReceivingStatusInProgress, StartedAt: ago(20)},
			{ID: 3, Status: model.ReceivingStatusInProgress, StartedAt: ago(31)},
			{ID: 4, Status: model.ReceivingStatusInProgress, CreatedAt: *ago(61)},
			{ID: 5, Status: model.ReceivingStatusOnHold, StartedAt: ago(2), HoldReason: "damaged",
				Items: []model.ReceivingItem{
					{ItemSKU: "SKU-1", ExpectedQty: 10, ReceivedQty: 4},
					{ItemSKU: "SKU-2", ExpectedQty: 1, ReceivedQty: 1, LocationCode: "A-01"},
				}},
		},
	}
	rec := &recorderFake{}

	found, err := newTestDetector(f, rec).Detect(context.Background())
	require.NoError(t, err)

	got := byID(found)
	require.NotContains(t, got, "RCV-1")
	assert.Equal(t, model.SeverityMedium, got["RCV-2"].Severity)
	assert.Equal(t, 20, got["RCV-2"].SinceMinutes)
	assert.Equal(t, model.SeverityHigh, got["RCV-3"].Severity)
	assert.Equal(t, model.SeverityCritical, got["RCV-4"].Severity)
	assert.Equal(t, 61, got["RCV-4"].SinceMinutes)

	held := got["RCV-5"]
	assert.Equal(t, model.SeverityHigh, held.Severity)
	assert.Contains(t, held.Actions, model.ActionUnhold)
	assert.Contains(t, held.Actions, model.ActionRelocateStock)
	assert.Contains(t, held.Detail, "damaged")
	assert.Contains(t, held.Detail, "1 lines without location, 1 lines incomplete")
	assert.Equal(t, model.TaskRef{Kind: model.TaskKindReceiving, ID: 5}, held.Task)
	assert.Equal(t, "SKU-1", held.ItemSKU)

	require.Len(t, rec.calls, 4)
	assert.Equal(t, "RCV-2", rec.calls[0].ExceptionID)
	assert.True(t, rec.calls[0].StartedAt.Equal(*ago(20)))
}

func TestRecorderFailureDoesNotFailDetect(t *testing.T) {
	f := &fakeReaders{docs: []model.ReceivingDocument{
		{ID: 1, Status: model.ReceivingStatusOnHold, StartedAt: ago(5)},
	}}
	rec := &recorderFake{err: errors.New("ledger down")}

	found, err := newTestDetector(f, rec).Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestCapacityBoundaries(t *testing.T) {
	loc := func(id uint, used int) model.LocationUsage {
		return model.LocationUsage{Location: model.Location{ID: id, Code: "L", Zone: "A", Capacity: 100}, Used: used}
	}
	f := &fakeReaders{locations: []model.LocationUsage{
		loc(1, 100), loc(2, 114), loc(3, 115), loc(4, 116), loc(5, 101),
		{Location: model.Location{ID: 6, Code: "Z", Capacity: 0}, Used: 5},
	}}

	d := newTestDetector(f, nil)
	found, err := d.Detect(context.Background())
	require.NoError(t, err)

	got := byID(found)
	require.NotContains(t, got, "LOC-1")
	require.NotContains(t, got, "LOC-6")
	assert.Equal(t, model.SeverityHigh, got["LOC-2"].Severity)
	assert.Equal(t, model.SeverityHigh, got["LOC-3"].Severity)
	assert.Equal(t, model.SeverityCritical, got["LOC-4"].Severity)
	assert.Equal(t, model.SeverityHigh, got["LOC-5"].Severity)
	assert.Equal(t, 0, got["LOC-4"].SinceMinutes)
	assert.Equal(t, "A", got["LOC-4"].Zone)

	assert.Equal(t, 50, f.scanBatch)
	assert.Equal(t, 200, f.scanMax)
}

func TestCapacityOnLargeLocations(t *testing.T) {
	loc := func(id uint, used int) model.LocationUsage {
		return model.LocationUsage{Location: model.Location{ID: id, Code: "BULK", Capacity: 100000}, Used: used}
	}
	f := &fakeReaders{locations: []model.LocationUsage{
		loc(1, 100001), loc(2, 115000), loc(3, 115004), loc(4, 100000),
	}}

	found, err := newTestDetector(f, nil).Detect(context.Background())
	require.NoError(t, err)

	got := byID(found)
	require.Contains(t, got, "LOC-1")
	assert.Equal(t, model.SeverityHigh, got["LOC-1"].Severity)
	assert.Equal(t, model.SeverityHigh, got["LOC-2"].Severity)
	assert.Equal(t, model.SeverityCritical, got["LOC-3"].Severity)
	require.NotContains(t, got, "LOC-4")
}

func TestLateShipmentRule(t *testing.T) {
	f := &fakeReaders{orders: []model.ShippingOrder{
		{ID: 1, Status: model.ShippingStatusPicking, StartedAt: ago(25)},
		{ID: 2, Status: model.ShippingStatusPicking, StartedAt: ago(41)},
		{ID: 3, Status: model.ShippingStatusStaged, StartedAt: ago(90), StagedAt: ago(61)},
		{ID: 4, Status: model.ShippingStatusStaged, StagedAt: ago(10)},
		{ID: 5, Status: model.ShippingStatusPicking, StartedAt: ago(19)},
	}}

	found, err := newTestDetector(f, nil).Detect(context.Background())
	require.NoError(t, err)

	got := byID(found)
	require.Len(t, got, 3)
	assert.Equal(t, model.SeverityMedium, got["SHIP-1"].Severity)
	assert.Equal(t, 25, got["SHIP-1"].SinceMinutes)
	assert.Equal(t, model.SeverityHigh, got["SHIP-2"].Severity)
	assert.Equal(t, model.SeverityCritical, got["SHIP-3"].Severity)
	assert.Equal(t, 61, got["SHIP-3"].SinceMinutes)
}

func TestWorkerGapRule(t *testing.T) {
	f := &fakeReaders{
		users: []model.User{
			{ID: 1, Name: "Ana", LastActivity: ago(1)},
			{ID: 2, Name: "Ben", Shift: "night", LastActivity: ago(7)},
			{ID: 3, Name: "Cai"},
		},
		docs: []model.ReceivingDocument{
			{ID: 10, Status: model.ReceivingStatusInProgress, StartedAt: ago(5), AssignedUserID: uptr(1)},
			{ID: 11, Status: model.ReceivingStatusInProgress, StartedAt: ago(5), AssignedUserID: uptr(2)},
			{ID: 12, Status: model.ReceivingStatusOnHold, StartedAt: ago(5), AssignedUserID: uptr(2)},
		},
		orders: []model.ShippingOrder{
			{ID: 20, Status: model.ShippingStatusPicking, StartedAt: ago(3), AssignedUserID: uptr(2)},
			{ID: 21, Status: model.ShippingStatusPicking, StartedAt: ago(4), AssignedUserID: uptr(3)},
		},
	}

	found, err := newTestDetector(f, nil).Detect(context.Background())
	require.NoError(t, err)

	got := map[string]model.Exception{}
	for _, e := range found {
		if e.Type == model.ExceptionWorkerGap {
			got[e.ID] = e
		}
	}
	require.Len(t, got, 3)
	require.Contains(t, got, "GAP-2-RCV-11")
	require.Contains(t, got, "GAP-2-SHIP-20")
	require.Contains(t, got, "GAP-3-SHIP-21")

	gap := got["GAP-2-RCV-11"]
	assert.Equal(t, model.SeverityHigh, gap.Severity)
	assert.Equal(t, 5, gap.SinceMinutes)
	assert.Equal(t, uint(2), gap.WorkerID)
	assert.False(t, gap.AssignedWorker.Online)
	assert.Equal(t, "night", gap.AssignedWorker.Shift)
	assert.Equal(t, 4, got["GAP-3-SHIP-21"].SinceMinutes)
}

func TestPutawayAndCycleCountRules(t *testing.T) {
	f := &fakeReaders{
		putaways: []model.PutawayTask{
			{ID: 3, Status: model.TaskStatusBlocked, CreatedAt: *ago(12), PalletID: "P-9", Notes: "aisle closed", LocationCode: "B-02"},
		},
		counts: []model.CycleCountTask{
			{ID: 7, Status: model.TaskStatusCompleted, UpdatedAt: *ago(29), TargetCode: "C-01"},
			{ID: 8, Status: model.TaskStatusCompleted, UpdatedAt: *ago(30), TargetCode: "C-02"},
		},
	}

	found, err := newTestDetector(f, nil).Detect(context.Background())
	require.NoError(t, err)

	got := byID(found)
	require.Len(t, got, 2)
	assert.Equal(t, model.SeverityMedium, got["PUT-3"].Severity)
	assert.Equal(t, 12, got["PUT-3"].SinceMinutes)
	assert.Contains(t, got["PUT-3"].Detail, "aisle closed")
	assert.Equal(t, model.SeverityMedium, got["CC-8"].Severity)
	assert.Equal(t, []string{model.ActionReconcile, model.ActionAcknowledge}, got["CC-8"].Actions)
}

func TestDetectKeepsRuleOrderAndInvariants(t *testing.T) {
	f := &fakeReaders{
		docs:      []model.ReceivingDocument{{ID: 1, Status: model.ReceivingStatusOnHold, StartedAt: ago(1)}},
		locations: []model.LocationUsage{{Location: model.Location{ID: 2, Capacity: 10}, Used: 20}},
		putaways:  []model.PutawayTask{{ID: 3, Status: model.TaskStatusBlocked, CreatedAt: now.Add(time.Minute)}},
		orders:    []model.ShippingOrder{{ID: 4, Status: model.ShippingStatusPicking, StartedAt: ago(30)}},
		counts:    []model.CycleCountTask{{ID: 5, Status: model.TaskStatusCompleted, UpdatedAt: *ago(40)}},
	}

	found, err := newTestDetector(f, nil).Detect(context.Background())
	require.NoError(t, err)

	ids := make([]string, 0, len(found))
	for _, e := range found {
		ids = append(ids, e.ID)
		assert.True(t, e.Severity.Valid())
		assert.GreaterOrEqual(t, e.SinceMinutes, 0)
	}
	assert.Equal(t, []string{"RCV-1", "LOC-2", "PUT-3", "SHIP-4", "CC-5"}, ids)
}

func TestDetectPropagatesReaderErrors(t *testing.T) {
	f := &fakeReaders{err: errors.New("db gone")}

	_, err := newTestDetector(f, nil).Detect(context.Background())
	require.Error(t, err)
}

func TestActive(t *testing.T) {
	f := &fakeReaders{orders: []model.ShippingOrder{
		{ID: 4, Status: model.ShippingStatusPicking, StartedAt: ago(30)},
	}}
	d := newTestDetector(f, nil)

	e, err := d.Active(context.Background(), "SHIP-4")
	require.NoError(t, err)
	assert.Equal(t, model.ExceptionLateShipment, e.Type)

	_, err = d.Active(context.Background(), "SHIP-5")
	require.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = d.Active(context.Background(), "nonsense")
	require.True(t, errors.Is(err, apperrors.ErrValidation))
}
