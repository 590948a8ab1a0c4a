package recommendation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warehouseops/src/connectors"
	"warehouseops/src/detached"
	"warehouseops/src/exceptions"
	"warehouseops/src/model"
	"warehouseops/src/sla"
)

var now = time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)

type staticExceptions []model.Exception

func (s staticExceptions) Detect(context.Context) ([]model.Exception, error) { return s, nil }

type staticWorkforce struct {
	workers []model.WorkerLoad
	err     error
	calls   int
}

func (s *staticWorkforce) Overview(context.Context, string) ([]model.WorkerLoad, error) {
	s.calls++
	return s.workers, s.err
}

type staticLocations []model.LocationUsage

func (s staticLocations) ListWithUsage(context.Context, int, int) ([]model.LocationUsage, error) {
	return s, nil
}

type trackerFake struct {
	mu       sync.Mutex
	recorded []string
	acked    []string
	ackErr   error
}

func (f *trackerFake) Record(_ context.Context, in sla.RecordInput) (*model.SlaEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, in.ExceptionID)
	return &model.SlaEvent{ExceptionID: in.ExceptionID}, nil
}

func (f *trackerFake) Acknowledge(_ context.Context, id, _ string, _ time.Time) (*model.SlaEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ackErr != nil {
		return nil, f.ackErr
	}
	for _, a := range f.acked {
		if a == id {
			return nil, nil
		}
	}
	f.acked = append(f.acked, id)
	return &model.SlaEvent{ExceptionID: id}, nil
}

type notifierFake struct {
	alerts []connectors.PriorityAlert
}

func (n *notifierFake) BroadcastPriorityAlert(_ context.Context, a connectors.PriorityAlert) error {
	n.alerts = append(n.alerts, a)
	return nil
}

type fixture struct {
	exceptions staticExceptions
	workforce  *staticWorkforce
	locations  staticLocations
	tracker    *trackerFake
	notifier   *notifierFake
}

func (f *fixture) engine() *Engine {
	if f.workforce == nil {
		f.workforce = &staticWorkforce{}
	}
	f.tracker = &trackerFake{}
	f.notifier = &notifierFake{}
	return NewEngine(Deps{
		Exceptions: f.exceptions,
		Workforce:  f.workforce,
		Locations:  f.locations,
		Tracker:    f.tracker,
		Notifier:   f.notifier,
		Runner:     detached.NewSyncRunner(),
		Scan:       exceptions.Config{ScanBatchSize: 100, ScanMaxEntities: 1000},
	}).WithClock(func() time.Time { return now })
}

func worker(id uint, status string, receivings, shipments int) model.WorkerLoad {
	return model.WorkerLoad{UserID: id, Name: "", OnlineStatus: status, OpenTasksCount: receivings, OpenShippingOrders: shipments}
}

func location(id uint, code, zone string, capacity, used int) model.LocationUsage {
	return model.LocationUsage{Location: model.Location{ID: id, Code: code, Zone: zone, Capacity: capacity}, Used: used}
}

func TestDedupKeepsHighestSeverity(t *testing.T) {
	recs := []model.Recommendation{
		{ExceptionID: "RCV-1", Severity: model.SeverityHigh, ProposedAction: "first"},
		{ExceptionID: "LOC-2", Severity: model.SeverityHigh},
		{ExceptionID: "RCV-1", Severity: model.SeverityCritical, ProposedAction: "second"},
		{ExceptionID: "RCV-1", Severity: model.SeverityCritical, ProposedAction: "third"},
		{ExceptionID: "LOC-2", Severity: model.SeverityMedium},
	}

	out := Dedup(recs)
	require.Len(t, out, 2)
	assert.Equal(t, "RCV-1", out[0].ExceptionID)
	assert.Equal(t, model.SeverityCritical, out[0].Severity)
	assert.Equal(t, "second", out[0].ProposedAction)
	assert.Equal(t, model.SeverityHigh, out[1].Severity)
}

func TestRecommendationsDedupAcrossDetections(t *testing.T) {
	f := &fixture{
		exceptions: staticExceptions{
			{ID: "RCV-1", Type: model.ExceptionReceivingDelay, Severity: model.SeverityHigh, SinceMinutes: 25},
			{ID: "RCV-1", Type: model.ExceptionReceivingDelay, Severity: model.SeverityCritical, SinceMinutes: 25},
		},
		workforce: &staticWorkforce{workers: []model.WorkerLoad{worker(2, "online", 0, 0)}},
	}

	recs, err := f.engine().Recommendations(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.SeverityCritical, recs[0].Severity)
	assert.Equal(t, 1, f.workforce.calls)
}

func TestReassignPicksLowestLoadExcludingAssignee(t *testing.T) {
	f := &fixture{
		exceptions: staticExceptions{{
			ID: "RCV-7", Type: model.ExceptionReceivingDelay, Severity: model.SeverityMedium, SinceMinutes: 22,
			AssignedWorker: &model.WorkerSnapshot{ID: 1, Name: "Ana"},
		}},
		workforce: &staticWorkforce{workers: []model.WorkerLoad{
			worker(1, "online", 0, 0), // assignee
			worker(2, "online", 1, 1), // 3.5
			worker(3, "online", 0, 2), // 3.0
			worker(4, "offline", 0, 0),
			worker(5, "online", 1, 0), // 2.0
		}},
	}

	recs, err := f.engine().Recommendations(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, model.ActionReassignWorker, rec.ProposedAction)
	assert.Equal(t, uint(5), rec.Target.UserID)
	assert.Equal(t, 2.0, rec.Target.Score)
	assert.Equal(t, model.SlaState{AgeMinutes: 22, SlaLimitMinutes: 30, BreachInMinutes: 8}, rec.SlaState)
	assert.Equal(t, "POST", rec.CTA.Method)
	assert.Equal(t, "/api/exceptions/execute", rec.CTA.Path)
	assert.Equal(t, model.ActionReassignWorker, rec.CTA.Body["action_type"])
	assert.Contains(t, rec.Explanation, "RCV-7")
}

func TestReassignSkipsWithoutCandidates(t *testing.T) {
	f := &fixture{
		exceptions: staticExceptions{{
			ID: "GAP-1-RCV-2", Type: model.ExceptionWorkerGap, Severity: model.SeverityHigh, SinceMinutes: 3, WorkerID: 1,
		}},
		workforce: &staticWorkforce{workers: []model.WorkerLoad{worker(1, "online", 0, 0), worker(2, "offline", 0, 0)}},
	}

	recs, err := f.engine().Recommendations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestWorkforceFailureDegrades(t *testing.T) {
	f := &fixture{
		exceptions: staticExceptions{{ID: "SHIP-1", Type: model.ExceptionLateShipment, Severity: model.SeverityMedium, SinceMinutes: 21}},
		workforce:  &staticWorkforce{err: errors.New("timeout")},
	}

	recs, err := f.engine().Recommendations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRelocatePrefersOtherZoneHalfFull(t *testing.T) {
	f := &fixture{
		exceptions: staticExceptions{{
			ID: "LOC-1", Type: model.ExceptionCapacityOverload, Severity: model.SeverityCritical,
			Task: model.TaskRef{Kind: model.TaskKindLocation, ID: 1}, LocationCode: "A-01", Zone: "A",
		}},
		locations: staticLocations{
			location(1, "A-01", "A", 100, 120),
			location(2, "A-02", "A", 100, 50), // same zone
			location(3, "B-01", "B", 100, 70),
			location(4, "B-02", "B", 100, 40),
		},
	}

	recs, err := f.engine().Recommendations(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.ActionRelocateStock, recs[0].ProposedAction)
	assert.Equal(t, "B-02", recs[0].Target.LocationCode)
	assert.Equal(t, 0.4, recs[0].Target.FillRatio)
	assert.Equal(t, 60, recs[0].Target.AvailableCapacity)
	assert.Equal(t, map[string]any{"target_location": "B-02"}, recs[0].CTA.Body["payload"])
}

func TestRelocateFallsBackBelowCeiling(t *testing.T) {
	f := &fixture{
		exceptions: staticExceptions{{
			ID: "LOC-1", Type: model.ExceptionCapacityOverload, Severity: model.SeverityHigh,
			Task: model.TaskRef{Kind: model.TaskKindLocation, ID: 1}, LocationCode: "A-01", Zone: "A",
		}},
		locations: staticLocations{
			location(1, "A-01", "A", 100, 110),
			location(2, "B-01", "B", 100, 90),
			location(3, "A-02", "A", 100, 79),
		},
	}

	recs, err := f.engine().Recommendations(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "A-02", recs[0].Target.LocationCode)
}

func TestRelocateWithoutTargetYieldsNothing(t *testing.T) {
	f := &fixture{
		exceptions: staticExceptions{{
			ID: "LOC-1", Type: model.ExceptionCapacityOverload, Severity: model.SeverityHigh,
			Task: model.TaskRef{Kind: model.TaskKindLocation, ID: 1}, LocationCode: "A-01", Zone: "A",
		}},
		locations: staticLocations{location(1, "A-01", "A", 100, 110), location(2, "B-01", "B", 100, 95)},
	}

	recs, err := f.engine().Recommendations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestPrioritizePickPrefersWorkersWithoutReceivings(t *testing.T) {
	f := &fixture{
		exceptions: staticExceptions{{ID: "SHIP-3", Type: model.ExceptionLateShipment, Severity: model.SeverityHigh, SinceMinutes: 41}},
		workforce: &staticWorkforce{workers: []model.WorkerLoad{
			worker(1, "online", 1, 0),
			worker(2, "online", 0, 3),
			worker(3, "online", 0, 1),
		}},
	}

	recs, err := f.engine().Recommendations(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.ActionPrioritizePick, recs[0].ProposedAction)
	assert.Equal(t, uint(3), recs[0].Target.UserID)
	assert.Equal(t, 0, recs[0].SlaState.BreachInMinutes)
}

func TestPrioritizePickFallsBackToAnyOnlineWorker(t *testing.T) {
	f := &fixture{
		exceptions: staticExceptions{{ID: "SHIP-3", Type: model.ExceptionLateShipment, Severity: model.SeverityMedium, SinceMinutes: 20}},
		workforce: &staticWorkforce{workers: []model.WorkerLoad{
			worker(1, "online", 1, 4),
			worker(2, "online", 2, 2),
			worker(3, "offline", 0, 0),
		}},
	}

	recs, err := f.engine().Recommendations(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, uint(2), recs[0].Target.UserID)
}

func TestBreachedExceptionsAreAutoAcknowledgedOnce(t *testing.T) {
	f := &fixture{
		exceptions: staticExceptions{
			{ID: "SHIP-1", Type: model.ExceptionLateShipment, Severity: model.SeverityCritical, SinceMinutes: 61},
			{ID: "PUT-2", Type: model.ExceptionPutawayBlocked, Severity: model.SeverityMedium, SinceMinutes: 3},
			{ID: "CC-4", Type: model.ExceptionCycleCountDiscrepancy, Severity: model.SeverityMedium, SinceMinutes: 60},
		},
		workforce: &staticWorkforce{workers: []model.WorkerLoad{worker(9, "online", 0, 0)}},
	}
	engine := f.engine()

	recs, err := engine.Recommendations(context.Background())
	require.NoError(t, err)

	// breached exceptions still get ranked
	require.Len(t, recs, 1)
	assert.Equal(t, "SHIP-1", recs[0].ExceptionID)

	assert.Equal(t, []string{"SHIP-1", "CC-4"}, f.tracker.acked)
	require.Len(t, f.notifier.alerts, 2)
	assert.Equal(t, 30, f.notifier.alerts[0].SlaLimitMinutes)

	_, err = engine.Recommendations(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.notifier.alerts, 2)
	assert.Len(t, f.tracker.recorded, 4)
}

func TestAutoAcknowledgeFailureIsSwallowed(t *testing.T) {
	f := &fixture{
		exceptions: staticExceptions{{ID: "SHIP-1", Type: model.ExceptionLateShipment, Severity: model.SeverityCritical, SinceMinutes: 90}},
		workforce:  &staticWorkforce{workers: []model.WorkerLoad{worker(9, "online", 0, 0)}},
	}
	engine := f.engine()
	f.tracker.ackErr = errors.New("ledger down")

	recs, err := engine.Recommendations(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Empty(t, f.notifier.alerts)
}

func TestBreachInUsesDefaultLimitForUnmappedTypes(t *testing.T) {
	m := model.DefaultSlaMatrix()
	assert.Equal(t, 5, m.BreachIn(model.ExceptionType("YARD_CONGESTION"), 25))
	assert.Equal(t, 0, m.BreachIn(model.ExceptionWorkerGap, 9))
	assert.Equal(t, 45, m.BreachIn(model.ExceptionCycleCountDiscrepancy, 15))
}
