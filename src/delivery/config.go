package delivery

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// FCMCredentialsFile points at the Firebase service account JSON. When
	// the file is missing, push delivery degrades to a noop provider.
	FCMCredentialsFile string `envconfig:"FCM_CREDENTIALS_FILE" default:"serviceAccountKey.json"`

	WebhookTimeout time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"10s"`

	// FanoutConcurrency bounds parallel deliveries per event.
	FanoutConcurrency int `envconfig:"DELIVERY_FANOUT_CONCURRENCY" default:"8"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
