package recommendation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"warehouseops/src/connectors"
	"warehouseops/src/detached"
	"warehouseops/src/exceptions"
	"warehouseops/src/model"
	"warehouseops/src/sla"
)

const executePath = "/api/exceptions/execute"

// Relocation targets: a cool location in another zone first, then anything below the ceiling.
var (
	preferredFillMin = decimal.RequireFromString("0.4")
	preferredFillMax = decimal.RequireFromString("0.6")
	fallbackFillMax  = decimal.RequireFromString("0.8")

	receivingWeight = decimal.NewFromInt(2)
	shippingWeight  = decimal.RequireFromString("1.5")
)

type ExceptionSource interface {
	Detect(ctx context.Context) ([]model.Exception, error)
}

type Workforce interface {
	Overview(ctx context.Context, role string) ([]model.WorkerLoad, error)
}

type LocationReader interface {
	ListWithUsage(ctx context.Context, batchSize, maxEntities int) ([]model.LocationUsage, error)
}

// SlaTracker is the part of the tracker used for auto-acknowledgement.
type SlaTracker interface {
	Record(ctx context.Context, in sla.RecordInput) (*model.SlaEvent, error)
	Acknowledge(ctx context.Context, exceptionID, by string, at time.Time) (*model.SlaEvent, error)
}

// Engine proposes at most one remediation per active exception.
type Engine struct {
	exceptions ExceptionSource
	workforce  Workforce
	locations  LocationReader
	tracker    SlaTracker
	notifier   connectors.Notifier
	runner     *detached.Runner
	matrix     model.SlaMatrix
	scan       exceptions.Config
	now        func() time.Time
	log        *logger.Entry
}

type Deps struct {
	Exceptions ExceptionSource
	Workforce  Workforce
	Locations  LocationReader
	Tracker    SlaTracker
	Notifier   connectors.Notifier
	Runner     *detached.Runner
	Matrix     model.SlaMatrix
	Scan       exceptions.Config
}

func NewEngine(deps Deps) *Engine {
	matrix := deps.Matrix
	if matrix == nil {
		matrix = model.DefaultSlaMatrix()
	}
	return &Engine{
		exceptions: deps.Exceptions,
		workforce:  deps.Workforce,
		locations:  deps.Locations,
		tracker:    deps.Tracker,
		notifier:   deps.Notifier,
		runner:     deps.Runner,
		matrix:     matrix,
		scan:       deps.Scan,
		now:        time.Now,
		log:        logger.WithField("component", "RecommendationEngine"),
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	c := *e
	c.now = now
	return &c
}

// Recommendations detects the active exceptions and ranks one remediation for each.
func (e *Engine) Recommendations(ctx context.Context) ([]model.Recommendation, error) {
	active, err := e.exceptions.Detect(ctx)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	pool := &candidatePool{engine: e}

	var out []model.Recommendation
	for _, ex := range active {
		limit := e.matrix.Limit(ex.Type)
		breachIn := e.matrix.BreachIn(ex.Type, ex.SinceMinutes)
		if breachIn == 0 {
			e.autoAcknowledge(ex, limit, now)
		}

		state := model.SlaState{AgeMinutes: ex.SinceMinutes, SlaLimitMinutes: limit, BreachInMinutes: breachIn}

		var rec *model.Recommendation
		switch ex.Type {
		case model.ExceptionReceivingDelay, model.ExceptionWorkerGap:
			rec = e.reassign(ctx, pool, ex, state)
		case model.ExceptionCapacityOverload:
			rec = e.relocate(ctx, pool, ex, state)
		case model.ExceptionLateShipment:
			rec = e.prioritizePick(ctx, pool, ex, state)
		}
		if rec != nil {
			out = append(out, *rec)
		}
	}

	out = Dedup(out)

	e.log.WithFields(map[string]interface{}{
		"op":         "Recommendations",
		"exceptions": len(active),
		"count":      len(out),
	}).Debug("Recommendations computed")

	return out, nil
}

// Dedup keeps one recommendation per exception id: the highest severity,
// and the first one seen on ties. First-seen order is preserved.
func Dedup(recs []model.Recommendation) []model.Recommendation {
	index := make(map[string]int, len(recs))
	out := make([]model.Recommendation, 0, len(recs))
	for _, r := range recs {
		i, seen := index[r.ExceptionID]
		if !seen {
			index[r.ExceptionID] = len(out)
			out = append(out, r)
			continue
		}
		if r.Severity.Rank() > out[i].Severity.Rank() {
			out[i] = r
		}
	}
	return out
}

// autoAcknowledge records and acknowledges a breached exception and raises
// a priority alert, all off the request path.
func (e *Engine) autoAcknowledge(ex model.Exception, limit int, now time.Time) {
	if e.runner == nil || e.tracker == nil {
		return
	}

	in := sla.RecordFromException(ex, now)
	alert := connectors.PriorityAlert{
		ExceptionID:     ex.ID,
		Type:            ex.Type,
		Severity:        ex.Severity,
		SinceMinutes:    ex.SinceMinutes,
		SlaLimitMinutes: limit,
		Message:         fmt.Sprintf("%s open %d min, SLA is %d min", ex.ID, ex.SinceMinutes, limit),
		RaisedAt:        now,
	}

	e.runner.Go("sla.autoack "+ex.ID, func(ctx context.Context) error {
		if _, err := e.tracker.Record(ctx, in); err != nil {
			return err
		}
		acked, err := e.tracker.Acknowledge(ctx, ex.ID, model.AcknowledgedBySystem, now)
		if err != nil {
			return err
		}
		// only the first acknowledgement alerts
		if acked == nil || e.notifier == nil {
			return nil
		}
		return e.notifier.BroadcastPriorityAlert(ctx, alert)
	})
}

// candidatePool loads workers and locations at most once per run.
type candidatePool struct {
	engine *Engine

	workersLoaded bool
	workers       []model.WorkerLoad

	locationsLoaded bool
	locations       []model.LocationUsage
}

func (p *candidatePool) onlineWorkers(ctx context.Context) []model.WorkerLoad {
	if !p.workersLoaded {
		p.workersLoaded = true
		all, err := p.engine.workforce.Overview(ctx, "")
		if err != nil {
			p.engine.log.WithField("op", "Recommendations").
				WithError(err).Warn("Workforce overview unavailable, skipping worker recommendations")
		}
		for _, w := range all {
			if w.Online() {
				p.workers = append(p.workers, w)
			}
		}
	}
	return p.workers
}

func (p *candidatePool) allLocations(ctx context.Context) []model.LocationUsage {
	if !p.locationsLoaded {
		p.locationsLoaded = true
		all, err := p.engine.locations.ListWithUsage(ctx, p.engine.scan.ScanBatchSize, p.engine.scan.ScanMaxEntities)
		if err != nil {
			p.engine.log.WithField("op", "Recommendations").
				WithError(err).Warn("Location scan failed, skipping relocation recommendations")
		}
		p.locations = all
	}
	return p.locations
}

// LoadScore is 2 x open receivings + 1.5 x open shipments.
func LoadScore(w model.WorkerLoad) decimal.Decimal {
	return receivingWeight.Mul(decimal.NewFromInt(int64(w.OpenTasksCount))).
		Add(shippingWeight.Mul(decimal.NewFromInt(int64(w.OpenShippingOrders))))
}

func (e *Engine) reassign(ctx context.Context, pool *candidatePool, ex model.Exception, state model.SlaState) *model.Recommendation {
	assigned := ex.WorkerID
	if ex.AssignedWorker != nil {
		assigned = ex.AssignedWorker.ID
	}

	var best *model.WorkerLoad
	var bestScore decimal.Decimal
	candidates := 0
	for _, w := range pool.onlineWorkers(ctx) {
		if assigned != 0 && w.UserID == assigned {
			continue
		}
		candidates++
		score := LoadScore(w)
		if best == nil || score.LessThan(bestScore) {
			w := w
			best, bestScore = &w, score
		}
	}
	if best == nil {
		return nil
	}

	explanation := fmt.Sprintf("%s %s. %s is online with %d open receivings and %d open shipments (load %s), the lightest of %d available workers.",
		ex.ID, ageText(state), workerName(*best), best.OpenTasksCount, best.OpenShippingOrders, bestScore.StringFixed(1), candidates)

	return e.workerRecommendation(ex, state, model.ActionReassignWorker, *best, bestScore, explanation)
}

func (e *Engine) prioritizePick(ctx context.Context, pool *candidatePool, ex model.Exception, state model.SlaState) *model.Recommendation {
	online := pool.onlineWorkers(ctx)
	if len(online) == 0 {
		return nil
	}

	var free []model.WorkerLoad
	for _, w := range online {
		if w.OpenTasksCount == 0 {
			free = append(free, w)
		}
	}

	reason := "has no open receivings and the fewest open shipments"
	candidates := free
	if len(candidates) == 0 {
		reason = "is the least busy online picker"
		candidates = append([]model.WorkerLoad(nil), online...)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].OpenShippingOrders < candidates[j].OpenShippingOrders
	})
	best := candidates[0]

	explanation := fmt.Sprintf("%s %s. %s %s (%d).",
		ex.ID, ageText(state), workerName(best), reason, best.OpenShippingOrders)

	return e.workerRecommendation(ex, state, model.ActionPrioritizePick, best, LoadScore(best), explanation)
}

func (e *Engine) relocate(ctx context.Context, pool *candidatePool, ex model.Exception, state model.SlaState) *model.Recommendation {
	locations := pool.allLocations(ctx)

	pick := func(accept func(u model.LocationUsage, fill decimal.Decimal) bool) (*model.LocationUsage, decimal.Decimal) {
		for i := range locations {
			u := locations[i]
			if u.Location.Code == ex.LocationCode || (ex.Task.Kind == model.TaskKindLocation && u.Location.ID == ex.Task.ID) {
				continue
			}
			fill, ok := exceptions.FillRatio(u.Used, u.Location.Capacity)
			if ok && accept(u, fill) {
				return &u, fill
			}
		}
		return nil, decimal.Zero
	}

	target, fill := pick(func(u model.LocationUsage, fill decimal.Decimal) bool {
		return u.Location.Zone != ex.Zone &&
			fill.GreaterThanOrEqual(preferredFillMin) && fill.LessThanOrEqual(preferredFillMax)
	})
	reason := "in another zone and about half full"
	if target == nil {
		target, fill = pick(func(_ model.LocationUsage, fill decimal.Decimal) bool {
			return fill.LessThan(fallbackFillMax)
		})
		reason = "the first location below 80% fill"
	}
	if target == nil {
		return nil
	}

	percent := fill.Mul(decimal.NewFromInt(100)).StringFixed(0)
	explanation := fmt.Sprintf("%s %s. Move stock to %s (zone %s, %s%% full, %d free), %s.",
		ex.ID, ageText(state), target.Location.Code, target.Location.Zone, percent,
		target.Location.Capacity-target.Used, reason)

	return &model.Recommendation{
		ExceptionID:    ex.ID,
		ExceptionType:  ex.Type,
		Severity:       ex.Severity,
		ProposedAction: model.ActionRelocateStock,
		Target: model.RecommendationTarget{
			Kind:              "location",
			LocationID:        target.Location.ID,
			LocationCode:      target.Location.Code,
			Zone:              target.Location.Zone,
			FillRatio:         fill.Round(4).InexactFloat64(),
			AvailableCapacity: target.Location.Capacity - target.Used,
		},
		Explanation: explanation,
		CTA:         executeCTA(ex.ID, model.ActionRelocateStock, map[string]any{"target_location": target.Location.Code}),
		SlaState:    state,
	}
}

func (e *Engine) workerRecommendation(ex model.Exception, state model.SlaState, action string, w model.WorkerLoad, score decimal.Decimal, explanation string) *model.Recommendation {
	return &model.Recommendation{
		ExceptionID:    ex.ID,
		ExceptionType:  ex.Type,
		Severity:       ex.Severity,
		ProposedAction: action,
		Target: model.RecommendationTarget{
			Kind:           "worker",
			UserID:         w.UserID,
			Name:           w.Name,
			OpenReceivings: w.OpenTasksCount,
			OpenShipments:  w.OpenShippingOrders,
			Score:          score.InexactFloat64(),
		},
		Explanation: explanation,
		CTA:         executeCTA(ex.ID, action, map[string]any{"target_user_id": w.UserID}),
		SlaState:    state,
	}
}

func executeCTA(exceptionID, action string, payload map[string]any) model.CallToAction {
	return model.CallToAction{
		Method: "POST",
		Path:   executePath,
		Body: map[string]any{
			"exception_id": exceptionID,
			"action_type":  action,
			"payload":      payload,
		},
	}
}

func ageText(s model.SlaState) string {
	if s.BreachInMinutes == 0 {
		return fmt.Sprintf("has been open %d min and breached its %d min SLA", s.AgeMinutes, s.SlaLimitMinutes)
	}
	return fmt.Sprintf("has been open %d min, %d min left of its %d min SLA", s.AgeMinutes, s.BreachInMinutes, s.SlaLimitMinutes)
}

func workerName(w model.WorkerLoad) string {
	if w.Name != "" {
		return w.Name
	}
	return fmt.Sprintf("worker %d", w.UserID)
}
