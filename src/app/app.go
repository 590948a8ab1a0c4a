// Package app wires repositories, engine components and notifiers into one
// process. Both the HTTP server and the CLI commands start from New.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"warehouseops/src/actions"
	"warehouseops/src/auth"
	"warehouseops/src/connectors"
	"warehouseops/src/database"
	"warehouseops/src/detached"
	"warehouseops/src/exceptions"
	"warehouseops/src/executors"
	"warehouseops/src/recommendation"
	"warehouseops/src/repository"
	"warehouseops/src/server"
	"warehouseops/src/sla"
)

type Repos struct {
	Receiving  *repository.ReceivingRepository
	Unhold     *repository.ReceivingRepository
	Shipping   *repository.ShippingRepository
	Tasks      *repository.TaskRepository
	Locations  *repository.LocationRepository
	Inventory  *repository.InventoryRepository
	Users      *repository.GormUserRepository
	SlaEvents  *repository.SlaEventRepository
	ActionLogs *repository.ActionLogRepository
}

type App struct {
	Repos     Repos
	Runner    *detached.Runner
	Tracker   *sla.Tracker
	Detector  *exceptions.Detector
	Engine    *recommendation.Engine
	Executor  *actions.Executor
	Workforce *connectors.WorkforceClient
	Hub       *connectors.AlertHub

	closers []func() error
}

// New expects database.InitMainDB and database.InitReadOnlyDB to have run.
func New() (*App, error) {
	if database.MainDB == nil || database.ReadOnlyDB == nil {
		return nil, errors.New("database connections are not initialized")
	}

	a := &App{
		Repos:  wireRepos(),
		Runner: detached.NewRunner(detached.GetConfig().Timeout),
	}

	conn := connectors.GetConfig()
	a.Workforce = connectors.NewWorkforceClient(conn)
	a.Hub = connectors.NewAlertHub()
	notifier, err := a.wireNotifier(conn)
	if err != nil {
		return nil, err
	}

	r := a.Repos
	scan := exceptions.GetConfig()

	a.Tracker = sla.NewTracker(r.SlaEvents, r.Receiving, r.Shipping, sla.GetConfig())
	a.Detector = exceptions.NewDetector(exceptions.Readers{
		Receiving: r.Receiving,
		Shipping:  r.Shipping,
		Tasks:     r.Tasks,
		Locations: r.Locations,
		Users:     r.Users,
	}, a.Tracker, a.Runner, scan)

	a.Engine = recommendation.NewEngine(recommendation.Deps{
		Exceptions: a.Detector,
		Workforce:  a.Workforce,
		Locations:  r.Locations,
		Tracker:    a.Tracker,
		Notifier:   notifier,
		Runner:     a.Runner,
		Matrix:     a.Tracker.Matrix(),
		Scan:       scan,
	})

	a.Executor = actions.NewExecutor(actions.Deps{
		Exceptions: a.Detector,
		Log:        r.ActionLogs,
		Workforce:  a.Workforce,
		Users:      r.Users,
		Receiving:  r.Unhold,
		Locations:  r.Locations,
		Inventory:  r.Inventory,
		Tracker:    a.Tracker,
	})

	return a, nil
}

// wireRepos binds the live-state readers to ReadOnlyDB and every write path to MainDB.
func wireRepos() Repos {
	return Repos{
		Receiving:  repository.NewReceivingRepository(),
		Unhold:     repository.NewReceivingRepository().WithDB(database.MainDB),
		Shipping:   repository.NewShippingRepository(),
		Tasks:      repository.NewTaskRepository(),
		Locations:  repository.NewLocationRepository(),
		Inventory:  repository.NewInventoryRepository(),
		Users:      repository.NewUserRepository(),
		SlaEvents:  repository.NewSlaEventRepository(),
		ActionLogs: repository.NewActionLogRepository(),
	}
}

// wireNotifier always includes the websocket hub. Kafka joins when brokers
// are configured and the redis gate wraps the whole fan-out when an address is set.
func (a *App) wireNotifier(conn connectors.Config) (connectors.Notifier, error) {
	sinks := connectors.MultiNotifier{a.Hub}

	if len(conn.KafkaBrokers) > 0 {
		pub, err := connectors.NewKafkaAlertPublisher(conn.KafkaBrokers, conn.KafkaAlertTopic)
		if err != nil {
			return nil, fmt.Errorf("kafka alert publisher: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		sinks = append(sinks, pub)
		logger.WithField("topic", conn.KafkaAlertTopic).Info("priority alerts published to kafka")
	}

	if conn.RedisAddr == "" {
		return sinks, nil
	}

	gate := connectors.NewRedisAlertGate(conn)
	a.closers = append(a.closers, gate.Close)
	logger.WithField("addr", conn.RedisAddr).Info("priority alerts gated through redis")
	return connectors.GatedNotifier{Gate: gate, Next: sinks}, nil
}

func (a *App) Watcher() *executors.Watcher {
	return &executors.Watcher{Ledger: a.Tracker, Detector: a.Detector, Recommender: a.Engine}
}

func (a *App) Router(verifier *auth.Verifier) http.Handler {
	return server.NewRouter(server.Routes{
		Detector:    a.Detector,
		Recommender: a.Engine,
		Executor:    a.Executor,
		Reporter:    a.Tracker,
		Actions:     a.Repos.ActionLogs,
		Verifier:    verifier,
		Alerts:      a.Hub,
	})
}

// Close drains detached tasks, disconnects websocket clients and closes the brokers.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Runner.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("detached tasks: %w", err))
	}
	a.Hub.Close()
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
