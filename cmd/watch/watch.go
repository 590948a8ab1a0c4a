package watch

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"warehouseops/src/app"
	"warehouseops/src/executors"
)

type Watch struct {
	App *app.App
}

// Start polls the engine until SIGINT or SIGTERM.
func (t *Watch) Start() error {
	config := GetConfig()
	loop := executors.GetConfig()
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	defer func() {
		drain, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.App.Close(drain); err != nil {
			logrus.WithError(err).Warn("Shutdown left work behind")
		}
	}()

	w := t.App.Watcher()
	if config.Once {
		res, err := w.Tick(ctx)
		if err != nil {
			return err
		}
		logrus.WithFields(map[string]interface{}{
			"exceptions":      res.Exceptions,
			"critical":        res.Critical,
			"recommendations": res.Recommendations,
		}).Info("Single watch tick done")
		return nil
	}

	logrus.WithField("period", loop.LoopPeriod).Info("Starting watch loop")
	if err := executors.StartLoop(ctx, w, loop); err != nil {
		logrus.WithError(err).Error("Watch loop failed")
		return err
	}
	return nil
}
