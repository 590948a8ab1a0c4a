package watch

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Once runs a single tick and exits.
	Once bool `envconfig:"WATCH_ONCE" default:"false"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
