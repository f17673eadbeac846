package webhook

import "time"

// Config describes the operator endpoint intents are posted to.
type Config struct {
	URL              string        `env:"WEBHOOK_URL,required"`
	Secret           string        `env:"WEBHOOK_SECRET,required"`
	Timeout          time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`
	FailureThreshold int           `env:"WEBHOOK_CIRCUIT_FAILURES" envDefault:"5"`
	SuccessThreshold int           `env:"WEBHOOK_CIRCUIT_SUCCESSES" envDefault:"2"`
	RecoveryTimeout  time.Duration `env:"WEBHOOK_CIRCUIT_RECOVERY" envDefault:"30s"`
}
