package settlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/notemarket/notemarket/app/models"
	"github.com/notemarket/notemarket/internal/pkg/env"
)

const (
	DefaultReplayWindow = 5 * time.Minute
	DefaultUnitTimeout  = 10 * time.Second
	DefaultLockTimeout  = 5 * time.Second
)

// Config holds the secrets and time bounds of the settlement engine.
type Config struct {
	WebhookSecret    string        `validate:"required"`
	PaymentKeySecret string        `validate:"omitempty"`
	ReplayWindow     time.Duration `validate:"gt=0"`
	EscrowHold       time.Duration `validate:"gt=0"`
	UnitTimeout      time.Duration `validate:"gt=0"`
	LockTimeout      time.Duration `validate:"gt=0"`
}

// ConfigFromEnv reads PAYMENT_WEBHOOK_SECRET and PAYMENT_KEY_SECRET.
func ConfigFromEnv() Config {
	return Config{
		WebhookSecret:    strings.TrimSpace(env.GetEnv("PAYMENT_WEBHOOK_SECRET", "")),
		PaymentKeySecret: strings.TrimSpace(env.GetEnv("PAYMENT_KEY_SECRET", "")),
		ReplayWindow:     env.GetEnvDuration("PAYMENT_REPLAY_WINDOW", DefaultReplayWindow),
		EscrowHold:       models.EscrowHoldPeriod,
		UnitTimeout:      DefaultUnitTimeout,
		LockTimeout:      DefaultLockTimeout,
	}
}

// Validate fails when the webhook secret is absent. The server refuses to start then.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("settlement config: %w", err)
	}
	return nil
}

func (c Config) paymentKeySecret() string {
	if c.PaymentKeySecret != "" {
		return c.PaymentKeySecret
	}
	return c.WebhookSecret
}
