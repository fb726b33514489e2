package engine

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ClampToLimit clamps an oversized order down to the guardrail limit
	// instead of rejecting it outright. Rejection still happens when the
	// clamped size reaches zero.
	ClampToLimit bool `envconfig:"GUARDRAIL_CLAMP_TO_LIMIT" default:"true"`

	// FollowerConcurrency bounds how many followers are evaluated in
	// parallel per leader fill.
	FollowerConcurrency int `envconfig:"FOLLOWER_CONCURRENCY" default:"8"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
