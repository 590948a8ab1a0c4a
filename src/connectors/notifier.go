package connectors

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"

	"warehouseops/src/model"
)

// PriorityAlert is pushed when an exception has used up its SLA.
type PriorityAlert struct {
	ExceptionID     string                  `json:"exception_id"`
	Type            model.ExceptionType     `json:"type"`
	Severity        model.ExceptionSeverity `json:"severity"`
	SinceMinutes    int                     `json:"since_minutes"`
	SlaLimitMinutes int                     `json:"sla_limit_minutes"`
	Message         string                  `json:"message"`
	RaisedAt        time.Time               `json:"raised_at"`
}

// Notifier delivers priority alerts. Callers treat delivery as best effort.
type Notifier interface {
	BroadcastPriorityAlert(ctx context.Context, alert PriorityAlert) error
}

// MultiNotifier fans an alert out to every sink and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) BroadcastPriorityAlert(ctx context.Context, alert PriorityAlert) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.BroadcastPriorityAlert(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GatedNotifier drops alerts the gate has already let through for the same exception.
type GatedNotifier struct {
	Gate interface {
		Allow(ctx context.Context, key string) (bool, error)
	}
	Next Notifier
}

func (g GatedNotifier) BroadcastPriorityAlert(ctx context.Context, alert PriorityAlert) error {
	if g.Gate != nil {
		ok, err := g.Gate.Allow(ctx, alert.ExceptionID)
		if err != nil {
			// an unreachable gate must not silence alerts
			logger.WithField("exception_id", alert.ExceptionID).
				WithError(err).Warn("Alert gate unavailable, sending anyway")
		} else if !ok {
			logger.WithField("exception_id", alert.ExceptionID).Debug("Alert suppressed by gate")
			return nil
		}
	}
	return g.Next.BroadcastPriorityAlert(ctx, alert)
}
