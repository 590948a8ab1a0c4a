package exceptions

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Locations are read in pages of ScanBatchSize, stopping at ScanMaxEntities.
	ScanBatchSize   int `envconfig:"SCAN_BATCH_SIZE" default:"500"`
	ScanMaxEntities int `envconfig:"SCAN_MAX_ENTITIES" default:"10000"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
