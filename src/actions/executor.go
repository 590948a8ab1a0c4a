package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"warehouseops/src/apperrors"
	"warehouseops/src/connectors"
	"warehouseops/src/model"
)

type ActiveExceptions interface {
	Active(ctx context.Context, id string) (*model.Exception, error)
}

type ActionLog interface {
	Append(ctx context.Context, entry *model.ActionLogEntry) error
}

type Workforce interface {
	AssignTask(ctx context.Context, actorID uint, req connectors.AssignTaskRequest) error
}

type Users interface {
	FindByID(ctx context.Context, id uint) (*model.User, error)
}

type ReceivingDocuments interface {
	Unhold(ctx context.Context, id uint) (bool, error)
}

type Locations interface {
	FindByCode(ctx context.Context, code string) (*model.Location, error)
}

type Inventory interface {
	ByLocation(ctx context.Context, locationID uint) ([]model.InventoryBalance, error)
}

type SlaTracker interface {
	Resolve(ctx context.Context, exceptionID, resolvedBy, action string, resolvedAt time.Time) (*model.SlaEvent, error)
	Acknowledge(ctx context.Context, exceptionID, by string, at time.Time) (*model.SlaEvent, error)
}

type Deps struct {
	Exceptions ActiveExceptions
	Log        ActionLog
	Workforce  Workforce
	Users      Users
	Receiving  ReceivingDocuments
	Locations  Locations
	Inventory  Inventory
	Tracker    SlaTracker
}

// ExecuteRequest is a remediation chosen by an operator or taken from a recommendation.
type ExecuteRequest struct {
	ExceptionID string              `json:"exception_id"`
	ActionType  string              `json:"action_type"`
	Payload     model.ActionPayload `json:"payload"`
	ExecutedBy  uint                `json:"-"`
}

type ExecuteResult struct {
	OK            bool   `json:"ok"`
	Logged        bool   `json:"logged"`
	Resolved      bool   `json:"resolved"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Executor runs remediations: validate, write the audit row, perform the
// effect, then resolve the SLA row as best-effort bookkeeping. The audit row
// is never rolled back.
type Executor struct {
	deps Deps
	now  func() time.Time
	log  *logger.Entry
}

func NewExecutor(deps Deps) *Executor {
	return &Executor{
		deps: deps,
		now:  time.Now,
		log:  logger.WithField("component", "ActionExecutor"),
	}
}

func (x *Executor) WithClock(now func() time.Time) *Executor {
	c := *x
	c.now = now
	return &c
}

// plan is a validated request with the effect it will run.
type plan struct {
	exception *model.Exception
	effect    func(ctx context.Context) error
	resolves  bool
}

func (x *Executor) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	p, err := x.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", apperrors.ErrValidation, err)
	}

	now := x.now().UTC()
	entry := &model.ActionLogEntry{
		CorrelationID:    uuid.NewString(),
		ExceptionID:      req.ExceptionID,
		ActionType:       req.ActionType,
		ExecutedByUserID: req.ExecutedBy,
		ExecutedAt:       now,
		Payload:          string(payload),
	}
	if err := x.deps.Log.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("append action log: %w", err)
	}

	fields := map[string]interface{}{
		"op":             "Execute",
		"exception_id":   req.ExceptionID,
		"action_type":    req.ActionType,
		"executed_by":    req.ExecutedBy,
		"correlation_id": entry.CorrelationID,
	}
	result := &ExecuteResult{Logged: true, CorrelationID: entry.CorrelationID}

	if err := p.effect(ctx); err != nil {
		x.log.WithFields(fields).WithField("outcome", "effect_failed").
			WithError(err).Error("Action logged but effect failed")
		return result, fmt.Errorf("%w: %s on %s: %w", apperrors.ErrPartialEffect, req.ActionType, req.ExceptionID, err)
	}
	result.OK = true

	if p.resolves && p.exception != nil {
		ev, err := x.deps.Tracker.Resolve(ctx, req.ExceptionID, strconv.FormatUint(uint64(req.ExecutedBy), 10), req.ActionType, now)
		if err != nil {
			x.log.WithFields(fields).WithError(err).Warn("Sla resolve failed after action")
		}
		result.Resolved = ev != nil
	}

	x.log.WithFields(fields).
		WithField("outcome", "ok").
		WithField("resolved", result.Resolved).
		Info("Action executed")

	return result, nil
}

func (x *Executor) validate(ctx context.Context, req ExecuteRequest) (*plan, error) {
	if req.ExecutedBy == 0 {
		return nil, fmt.Errorf("%w: executing user is required", apperrors.ErrValidation)
	}
	if _, err := model.ParseExceptionID(req.ExceptionID); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	switch req.ActionType {
	case model.ActionReassignWorker, model.ActionPrioritizePick:
		return x.planAssign(ctx, req)
	case model.ActionUnhold:
		return x.planUnhold(ctx, req)
	case model.ActionRelocateStock:
		return x.planRelocate(ctx, req)
	case model.ActionAcknowledge:
		return x.planAcknowledge(ctx, req)
	default:
		return nil, fmt.Errorf("%w: unsupported action %q", apperrors.ErrValidation, req.ActionType)
	}
}

func (x *Executor) planAssign(ctx context.Context, req ExecuteRequest) (*plan, error) {
	pl := req.Payload
	if pl.TargetUserID == nil && pl.TeamID == nil {
		return nil, fmt.Errorf("%w: target_user_id or team_id is required", apperrors.ErrValidation)
	}

	if pl.TargetUserID != nil {
		u, err := x.deps.Users.FindByID(ctx, *pl.TargetUserID)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, fmt.Errorf("%w: user %d", apperrors.ErrNotFound, *pl.TargetUserID)
		}
	}

	ex, err := x.deps.Exceptions.Active(ctx, req.ExceptionID)
	if err != nil {
		return nil, err
	}
	switch ex.Task.Kind {
	case model.TaskKindReceiving, model.TaskKindShipping, model.TaskKindPutaway:
	default:
		return nil, fmt.Errorf("%w: %s has no assignable task", apperrors.ErrValidation, ex.ID)
	}

	assign := connectors.AssignTaskRequest{
		Type:   ex.Task.Kind,
		TaskID: ex.Task.ID,
		TeamID: pl.TeamID,
		Policy: pl.Policy,
	}
	if pl.TargetUserID != nil {
		assign.Assignees = []uint{*pl.TargetUserID}
	}
	if assign.Policy == "" {
		assign.Policy = connectors.PolicyReplace
	}

	return &plan{
		exception: ex,
		resolves:  true,
		effect: func(ctx context.Context) error {
			return x.deps.Workforce.AssignTask(ctx, req.ExecutedBy, assign)
		},
	}, nil
}

func (x *Executor) planUnhold(ctx context.Context, req ExecuteRequest) (*plan, error) {
	ex, err := x.deps.Exceptions.Active(ctx, req.ExceptionID)
	if err != nil {
		return nil, err
	}
	if ex.Task.Kind != model.TaskKindReceiving || !hasAction(ex, model.ActionUnhold) {
		return nil, fmt.Errorf("%w: %s is not an on-hold receiving document", apperrors.ErrValidation, ex.ID)
	}

	return &plan{
		exception: ex,
		resolves:  true,
		effect: func(ctx context.Context) error {
			ok, err := x.deps.Receiving.Unhold(ctx, ex.Task.ID)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("document is no longer on hold")
			}
			return nil
		},
	}, nil
}

// planRelocate validates the target and logs the stock that would move. No
// inventory is changed.
func (x *Executor) planRelocate(ctx context.Context, req ExecuteRequest) (*plan, error) {
	var target *model.Location
	if code := req.Payload.TargetLocation; code != "" {
		loc, err := x.deps.Locations.FindByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		if loc == nil {
			return nil, fmt.Errorf("%w: location %s", apperrors.ErrNotFound, code)
		}
		target = loc
	}

	ex, err := x.deps.Exceptions.Active(ctx, req.ExceptionID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	return &plan{
		exception: ex,
		resolves:  true,
		effect: func(ctx context.Context) error {
			fields := map[string]interface{}{
				"op":           "RelocateStock",
				"exception_id": req.ExceptionID,
			}
			if target != nil {
				fields["target_location"] = target.Code
			}
			if ex != nil && ex.Task.Kind == model.TaskKindLocation {
				balances, err := x.deps.Inventory.ByLocation(ctx, ex.Task.ID)
				if err != nil {
					return err
				}
				fields["balances"] = len(balances)
			}
			x.log.WithFields(fields).Info("Relocation requested, no inventory moved")
			return nil
		},
	}, nil
}

// planAcknowledge marks the ledger row as seen by the executing user. It does not resolve.
func (x *Executor) planAcknowledge(ctx context.Context, req ExecuteRequest) (*plan, error) {
	ex, err := x.deps.Exceptions.Active(ctx, req.ExceptionID)
	if err != nil {
		return nil, err
	}

	return &plan{
		exception: ex,
		effect: func(ctx context.Context) error {
			_, err := x.deps.Tracker.Acknowledge(ctx, ex.ID, strconv.FormatUint(uint64(req.ExecutedBy), 10), x.now().UTC())
			return err
		},
	}, nil
}

func hasAction(ex *model.Exception, action string) bool {
	for _, a := range ex.Actions {
		if a == action {
			return true
		}
	}
	return false
}
