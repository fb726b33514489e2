package ingestion

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"15s"`

	// PollConcurrency bounds how many connections are polled in parallel
	// per tick.
	PollConcurrency int `envconfig:"POLL_CONCURRENCY" default:"4"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
