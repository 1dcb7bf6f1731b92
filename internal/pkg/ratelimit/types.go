package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrQuotaExceeded marks a denied consumption.
var ErrQuotaExceeded = errors.New("rate limit exceeded")

type Layer string

const (
	LayerUser   Layer = "user"
	LayerIP     Layer = "ip"
	LayerGlobal Layer = "global"
)

// Rule is a fixed-window quota. Once Points is exceeded the key stays blocked for
// Block (or until the window ends when Block is zero).
type Rule struct {
	Layer  Layer
	Points int64
	Window time.Duration
	Block  time.Duration
}

// SensitiveRules guard client-initiated payment verification.
var SensitiveRules = []Rule{
	{Layer: LayerUser, Points: 10, Window: 60 * time.Second, Block: 300 * time.Second},
	{Layer: LayerIP, Points: 100, Window: 60 * time.Second, Block: 600 * time.Second},
	{Layer: LayerGlobal, Points: 5000, Window: time.Second, Block: 10 * time.Second},
}

// Keys identifies the caller for each layer. Empty keys skip their layer.
type Keys struct {
	User string
	IP   string
	Path string
}

const globalKey = "all"

func (k Keys) For(layer Layer) string {
	switch layer {
	case LayerUser:
		return k.User
	case LayerIP:
		return k.IP
	case LayerGlobal:
		return globalKey
	}
	return ""
}

// Result is the outcome of one consumption against one store key.
type Result struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Decision combines all layers. Layer names the denying layer with the longest block.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Layer      Layer
}

// Err returns ErrQuotaExceeded for a denial.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w on %s layer", ErrQuotaExceeded, d.Layer)
}

// Store consumes one point for key under rule.
type Store interface {
	Consume(ctx context.Context, key string, rule Rule) (Result, error)
}

func storeKey(layer Layer, key string) string {
	return "rl:" + string(layer) + ":" + key
}
