package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	WorkforceBaseURL string        `envconfig:"WORKFORCE_BASE_URL" default:"http://localhost:8081"`
	WorkforceToken   string        `envconfig:"WORKFORCE_TOKEN"`
	WorkforceTimeout time.Duration `envconfig:"WORKFORCE_TIMEOUT" default:"10s"`

	// Alerts are only published to Kafka when brokers are configured.
	KafkaBrokers    []string `envconfig:"KAFKA_BROKERS"`
	KafkaAlertTopic string   `envconfig:"KAFKA_ALERT_TOPIC" default:"warehouse.priority-alerts"`

	// The alert gate is disabled when RedisAddr is empty.
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	AlertGateTTL  time.Duration `envconfig:"ALERT_GATE_TTL" default:"15m"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
