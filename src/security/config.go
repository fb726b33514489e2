package security

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// SealKey is the 32-byte hex key used to seal broker authorization
	// handles at rest.
	SealKey string `envconfig:"SEAL_KEY"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
