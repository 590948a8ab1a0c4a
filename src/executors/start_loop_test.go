package executors

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warehouseops/src/model"
	"warehouseops/src/sla"
)

type fakeEngine struct {
	reconciles atomic.Int32
	order      []string
	detectErr  error
}

func (f *fakeEngine) Reconcile(context.Context) (sla.ReconcileReport, error) {
	f.reconciles.Add(1)
	f.order = append(f.order, "reconcile")
	return sla.ReconcileReport{Observed: 2, Closed: 1}, nil
}

func (f *fakeEngine) Detect(context.Context) ([]model.Exception, error) {
	f.order = append(f.order, "detect")
	if f.detectErr != nil {
		return nil, f.detectErr
	}
	return []model.Exception{
		{ID: "SHIP-1", Severity: model.SeverityCritical},
		{ID: "RCV-2", Severity: model.SeverityHigh},
	}, nil
}

func (f *fakeEngine) Recommendations(context.Context) ([]model.Recommendation, error) {
	f.order = append(f.order, "recommend")
	return []model.Recommendation{{ExceptionID: "SHIP-1"}}, nil
}

func newWatcher(f *fakeEngine) *Watcher {
	return &Watcher{Ledger: f, Detector: f, Recommender: f}
}

func TestTickRunsInOrder(t *testing.T) {
	f := &fakeEngine{}
	res, err := newWatcher(f).Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"reconcile", "detect", "recommend"}, f.order)
	assert.Equal(t, 2, res.Exceptions)
	assert.Equal(t, 1, res.Critical)
	assert.Equal(t, 1, res.Recommendations)
	assert.Equal(t, 1, res.Reconcile.Closed)
}

func TestTickStopsOnDetectError(t *testing.T) {
	f := &fakeEngine{detectErr: errors.New("db gone")}
	_, err := newWatcher(f).Tick(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detect")
	assert.Equal(t, []string{"reconcile", "detect"}, f.order)
}

func TestStartLoopStopsOnCancel(t *testing.T) {
	f := &fakeEngine{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- StartLoop(ctx, newWatcher(f), Config{LoopPeriod: 5 * time.Millisecond}) }()

	require.Eventually(t, func() bool { return f.reconciles.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestStartLoopStopOnError(t *testing.T) {
	f := &fakeEngine{detectErr: errors.New("db gone")}
	err := StartLoop(context.Background(), newWatcher(f), Config{LoopPeriod: time.Millisecond, StopOnError: true})
	assert.Error(t, err)

	assert.Error(t, StartLoop(context.Background(), newWatcher(f), Config{}))
}
