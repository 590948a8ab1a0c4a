package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"warehouseops/cmd/token"
	"warehouseops/cmd/watch"
	"warehouseops/src/app"
	"warehouseops/src/database"
	"warehouseops/src/utils"
)

var Version string

func main() {
	cliApp := cli.NewApp()
	cliApp.Name = "warehouseops"
	cliApp.Usage = "Operational exception and SLA compliance engine"
	cliApp.Version = Version

	cliApp.Before = func(_ *cli.Context) error {
		config := database.GetConfig()
		utils.SetupLogger(config.LogLevel, config.LogFormat)
		return nil
	}

	cliApp.Commands = []cli.Command{
		detectCMD,
		reconcileCMD,
		recommendCMD,
		watchCMD,
		tokenCMD,
	}

	if err := cliApp.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	detectCMD = cli.Command{
		Name:        "detect",
		Usage:       "print active exceptions",
		Action:      detectAction,
		Description: `Run every detection rule once and print the result as JSON`,
	}
	reconcileCMD = cli.Command{
		Name:        "reconcile",
		Usage:       "reconcile the SLA ledger",
		Action:      reconcileAction,
		Description: `Re-derive receiving and shipping ledger rows from live state`,
	}
	recommendCMD = cli.Command{
		Name:        "recommend",
		Usage:       "print ranked recommendations",
		Action:      recommendAction,
		Description: `Compute one recommendation per active exception and print them as JSON`,
	}
	watchCMD = cli.Command{
		Name:        "watch",
		Usage:       "run the polling loop",
		Action:      watchAction,
		Description: `Reconcile, detect and recommend every LOOP_PERIOD until stopped`,
	}
	tokenCMD = cli.Command{
		Name:      "token",
		Usage:     "mint a bearer token for local testing",
		Action:    tokenAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.UintFlag{Name: "user", Usage: "user id placed in the subject"},
			cli.StringFlag{Name: "role", Value: "supervisor", Usage: "operator | supervisor | admin"},
			cli.DurationFlag{Name: "ttl", Value: time.Hour, Usage: "token lifetime"},
		},
		Description: `Sign a token with JWT_SECRET`,
	}
)

// bootstrap connects both databases and wires the engine.
func bootstrap() (*app.App, error) {
	if err := database.InitMainDB(); err != nil {
		return nil, fmt.Errorf("connect main database: %w", err)
	}
	if err := database.InitReadOnlyDB(); err != nil {
		return nil, fmt.Errorf("connect read-only database: %w", err)
	}
	return app.New()
}

// runOnce runs fn against a fresh App and drains detached work before returning.
func runOnce(cmd string, fn func(ctx context.Context, a *app.App) (interface{}, error)) error {
	log := logrus.WithField("cmd", cmd)
	log.Info("Starting cmd")

	a, err := bootstrap()
	if err != nil {
		log.WithError(err).Error("Starting cmd")
		return err
	}

	ctx := context.Background()
	out, err := fn(ctx, a)

	drain, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if cerr := a.Close(drain); cerr != nil {
		log.WithError(cerr).Warn("Shutdown left work behind")
	}

	if err != nil {
		log.WithError(err).Error("Cmd failed")
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func detectAction(_ *cli.Context) error {
	return runOnce("detect", func(ctx context.Context, a *app.App) (interface{}, error) {
		return a.Detector.Detect(ctx)
	})
}

func reconcileAction(_ *cli.Context) error {
	return runOnce("reconcile", func(ctx context.Context, a *app.App) (interface{}, error) {
		return a.Tracker.Reconcile(ctx)
	})
}

func recommendAction(_ *cli.Context) error {
	return runOnce("recommend", func(ctx context.Context, a *app.App) (interface{}, error) {
		return a.Engine.Recommendations(ctx)
	})
}

func watchAction(_ *cli.Context) error {
	logrus.WithField("cmd", "watch").Info("Starting watch CMD")

	a, err := bootstrap()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return (&watch.Watch{App: a}).Start()
}

func tokenAction(c *cli.Context) error {
	return (&token.Token{
		UserID: c.Uint("user"),
		Role:   c.String("role"),
		TTL:    c.Duration("ttl"),
		Out:    os.Stdout,
	}).Start()
}
