package exceptions

import (
	"context"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"warehouseops/src/apperrors"
	"warehouseops/src/detached"
	"warehouseops/src/model"
	"warehouseops/src/sla"
)

type ReceivingReader interface {
	FindActive(ctx context.Context) ([]model.ReceivingDocument, error)
}

type ShippingReader interface {
	FindActive(ctx context.Context) ([]model.ShippingOrder, error)
}

type TaskReader interface {
	PutawayByStatus(ctx context.Context, status string) ([]model.PutawayTask, error)
	CycleCountByStatus(ctx context.Context, status string) ([]model.CycleCountTask, error)
}

type LocationReader interface {
	ListWithUsage(ctx context.Context, batchSize, maxEntities int) ([]model.LocationUsage, error)
}

type UserReader interface {
	All(ctx context.Context) ([]model.User, error)
}

// Recorder receives RECEIVING_DELAY exceptions as they are seen.
type Recorder interface {
	Record(ctx context.Context, in sla.RecordInput) (*model.SlaEvent, error)
}

// Readers groups the live-state sources the rules scan.
type Readers struct {
	Receiving ReceivingReader
	Shipping  ShippingReader
	Tasks     TaskReader
	Locations LocationReader
	Users     UserReader
}

// Detector derives the current operational exceptions from live state.
// Nothing it returns is persisted.
type Detector struct {
	readers  Readers
	recorder Recorder
	runner   *detached.Runner
	config   Config
	now      func() time.Time
	log      *logger.Entry
}

// NewDetector builds a detector. recorder and runner may be nil, in which
// case nothing is forwarded to the SLA ledger.
func NewDetector(readers Readers, recorder Recorder, runner *detached.Runner, config Config) *Detector {
	return &Detector{
		readers:  readers,
		recorder: recorder,
		runner:   runner,
		config:   config,
		now:      time.Now,
		log:      logger.WithField("component", "ExceptionDetector"),
	}
}

func (d *Detector) WithClock(now func() time.Time) *Detector {
	c := *d
	c.now = now
	return &c
}

type rule func(ctx context.Context, now time.Time) ([]model.Exception, error)

// Detect evaluates every rule and concatenates their results in rule order.
// There is no de-duplication across rules.
func (d *Detector) Detect(ctx context.Context) ([]model.Exception, error) {
	now := d.now().UTC()

	rules := []struct {
		name string
		fn   rule
	}{
		{"receiving_delay", d.receivingDelays},
		{"capacity_overload", d.capacityOverloads},
		{"putaway_blocked", d.blockedPutaways},
		{"late_shipment", d.lateShipments},
		{"worker_gap", d.workerGaps},
		{"cycle_count_discrepancy", d.cycleCountDiscrepancies},
	}

	results := make([][]model.Exception, len(rules))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range rules {
		i, r := i, r
		g.Go(func() error {
			found, err := r.fn(gctx, now)
			if err != nil {
				return fmt.Errorf("rule %s: %w", r.name, err)
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		d.log.WithField("op", "Detect").WithError(err).Error("Exception detection failed")
		return nil, err
	}

	var out []model.Exception
	for _, found := range results {
		out = append(out, found...)
	}

	d.forwardReceivingDelays(out, now)

	d.log.WithFields(map[string]interface{}{
		"op":    "Detect",
		"count": len(out),
	}).Debug("Exceptions detected")

	return out, nil
}

// Active returns the exception with the given id if it is currently detected.
func (d *Detector) Active(ctx context.Context, id string) (*model.Exception, error) {
	if _, err := model.ParseExceptionID(id); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	all, err := d.Detect(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("%w: exception %s is not active", apperrors.ErrNotFound, id)
}

// forwardReceivingDelays pushes receiving delays into the SLA ledger off the request path.
func (d *Detector) forwardReceivingDelays(found []model.Exception, now time.Time) {
	if d.recorder == nil || d.runner == nil {
		return
	}
	for _, e := range found {
		if e.Type != model.ExceptionReceivingDelay {
			continue
		}
		in := sla.RecordFromException(e, now)
		d.runner.Go("sla.record "+e.ID, func(ctx context.Context) error {
			_, err := d.recorder.Record(ctx, in)
			return err
		})
	}
}
