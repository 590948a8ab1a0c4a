package executors

import (
	"context"
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"

	"warehouseops/src/model"
	"warehouseops/src/sla"
)

type Reconciler interface {
	Reconcile(ctx context.Context) (sla.ReconcileReport, error)
}

type Detector interface {
	Detect(ctx context.Context) ([]model.Exception, error)
}

type Recommender interface {
	Recommendations(ctx context.Context) ([]model.Recommendation, error)
}

// Watcher is the periodic caller of the engine: reconcile the ledger, detect,
// then rank. Recommendations fire the auto-acknowledge and priority alerts.
type Watcher struct {
	Ledger      Reconciler
	Detector    Detector
	Recommender Recommender
}

// TickResult is what one pass observed.
type TickResult struct {
	Reconcile       sla.ReconcileReport
	Exceptions      int
	Critical        int
	Recommendations int
}

func (w *Watcher) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult

	report, err := w.Ledger.Reconcile(ctx)
	if err != nil {
		return res, fmt.Errorf("reconcile: %w", err)
	}
	res.Reconcile = report

	found, err := w.Detector.Detect(ctx)
	if err != nil {
		return res, fmt.Errorf("detect: %w", err)
	}
	res.Exceptions = len(found)
	for _, ex := range found {
		if ex.Severity == model.SeverityCritical {
			res.Critical++
		}
	}

	recs, err := w.Recommender.Recommendations(ctx)
	if err != nil {
		return res, fmt.Errorf("recommendations: %w", err)
	}
	res.Recommendations = len(recs)

	return res, nil
}

// StartLoop ticks every config.LoopPeriod until ctx is done.
func StartLoop(ctx context.Context, w *Watcher, config Config) error {
	if config.LoopPeriod <= 0 {
		return errors.New("loop period must be positive")
	}

	ticker := time.NewTicker(config.LoopPeriod) // Set up a ticker that fires periodically
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("loop stopped")
			return nil

		case <-ticker.C:
			res, err := w.Tick(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.WithError(err).Error("watch tick failed")
				if config.StopOnError {
					return err
				}
				continue
			}

			logger.WithFields(map[string]interface{}{
				"observed":        res.Reconcile.Observed,
				"closed":          res.Reconcile.Closed,
				"deleted":         res.Reconcile.Deleted,
				"exceptions":      res.Exceptions,
				"critical":        res.Critical,
				"recommendations": res.Recommendations,
			}).Info("loop tick")
		}
	}
}
