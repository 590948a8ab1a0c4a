package main

import (
	"context"
	"fmt"
	"os"
	"time"

	logger "github.com/sirupsen/logrus"

	"warehouseops/src/app"
	"warehouseops/src/auth"
	"warehouseops/src/database"
	"warehouseops/src/server"
	"warehouseops/src/utils"
)

var APP_NAME = os.Getenv("APP_NAME")

func main() {
	dbConfig := database.GetConfig()
	utils.SetupLogger(dbConfig.LogLevel, dbConfig.LogFormat)
	defer handlePanic()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	// Initialize read-only database
	if err := database.InitReadOnlyDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	a, err := app.New()
	if err != nil {
		logger.WithError(err).Fatal("Failed to wire application")
	}

	verifier := auth.NewVerifier(auth.GetConfig())
	server.StartServer(server.GetConfig(), a.Router(verifier), func(ctx context.Context) {
		if err := a.Close(ctx); err != nil {
			logger.WithError(err).Warn("Shutdown left work behind")
		}
	})
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
		//nolint
		time.Sleep(time.Second * 5)
	}
}
