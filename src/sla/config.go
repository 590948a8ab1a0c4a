package sla

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Lookback bounds how far back reconciliation re-reads completed documents and orders.
	Lookback        time.Duration `envconfig:"SLA_LOOKBACK" default:"720h"`
	HistoryLimit    int           `envconfig:"SLA_HISTORY_LIMIT" default:"50"`
	HistoryMaxLimit int           `envconfig:"SLA_HISTORY_MAX_LIMIT" default:"500"`
	TrendMaxDays    int           `envconfig:"SLA_TREND_MAX_DAYS" default:"90"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
