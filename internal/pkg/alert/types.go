package alert

import (
	"strings"
	"time"

	"github.com/notemarket/notemarket/internal/pkg/env"
)

// Severity is opaque to delivery; it only travels with the alert.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityWarning  Severity = "WARNING"
)

// Alert is the wire shape POSTed to the alert endpoint.
type Alert struct {
	Severity    Severity       `json:"severity"`
	Event       string         `json:"event"`
	Message     string         `json:"message"`
	Metadata    map[string]any `json:"metadata"`
	Timestamp   time.Time      `json:"timestamp"`
	Environment string         `json:"environment"`
}

// Notifier is the fire-and-forget surface used by the settlement engine and the
// rate limiter.
type Notifier interface {
	Notify(severity Severity, event, message string, metadata map[string]any)
}

// Config controls delivery to the external endpoint.
type Config struct {
	URL         string
	Environment string
	MaxAttempts int
	BaseBackoff time.Duration
	Timeout     time.Duration
	Workers     int
	QueueSize   int
	// DrainTimeout bounds Stop. Alerts still queued afterwards are recorded as
	// FAILED without further attempts.
	DrainTimeout time.Duration
}

const (
	DefaultMaxAttempts  = 3
	DefaultBaseBackoff  = time.Second
	DefaultTimeout      = 5 * time.Second
	DefaultWorkers      = 2
	DefaultQueueSize    = 256
	DefaultDrainTimeout = 5 * time.Second
)

// ConfigFromEnv reads ALERT_* variables. An empty ALERT_WEBHOOK_URL disables delivery.
func ConfigFromEnv() Config {
	return Config{
		URL:          strings.TrimSpace(env.GetEnv("ALERT_WEBHOOK_URL", "")),
		Environment:  env.AppEnv(),
		MaxAttempts:  DefaultMaxAttempts,
		BaseBackoff:  DefaultBaseBackoff,
		Timeout:      env.GetEnvDuration("ALERT_TIMEOUT", DefaultTimeout),
		Workers:      env.GetEnvInt("ALERT_WORKERS", DefaultWorkers),
		QueueSize:    env.GetEnvInt("ALERT_QUEUE_SIZE", DefaultQueueSize),
		DrainTimeout: env.GetEnvDuration("ALERT_DRAIN_TIMEOUT", DefaultDrainTimeout),
	}
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = DefaultBaseBackoff
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.Environment == "" {
		c.Environment = "prod"
	}
	return c
}

// backoff returns the wait before retry n (1-based): base, 2*base, 4*base, ...
func (c Config) backoff(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	return c.BaseBackoff << (retry - 1)
}
