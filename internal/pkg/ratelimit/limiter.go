package ratelimit

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/notemarket/notemarket/internal/pkg/alert"
	"github.com/notemarket/notemarket/internal/pkg/metrics"
)

// Limiter admits a call only when every layer grants quota. Layers are consumed
// concurrently.
type Limiter struct {
	name   string
	rules  []Rule
	store  Store
	alerts alert.Notifier
}

// NewLimiter builds a limiter. alerts may be nil for limiters that only answer 429.
func NewLimiter(name string, store Store, alerts alert.Notifier, rules ...Rule) *Limiter {
	return &Limiter{name: name, rules: rules, store: store, alerts: alerts}
}

// NewSensitiveLimiter guards payment verification with the user, ip and global layers.
func NewSensitiveLimiter(store Store, alerts alert.Notifier) *Limiter {
	return NewLimiter("sensitive", store, alerts, SensitiveRules...)
}

func (l *Limiter) Admit(ctx context.Context, keys Keys) (Decision, error) {
	results := make([]Result, len(l.rules))

	g, gctx := errgroup.WithContext(ctx)
	for i, rule := range l.rules {
		i, rule := i, rule
		key := keys.For(rule.Layer)
		if key == "" {
			results[i] = Result{Allowed: true}
			continue
		}
		g.Go(func() error {
			res, err := l.store.Consume(gctx, storeKey(rule.Layer, key), rule)
			if err != nil {
				return fmt.Errorf("%s layer: %w", rule.Layer, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Decision{}, err
	}

	decision := Decision{Allowed: true}
	for i, res := range results {
		if res.Allowed {
			continue
		}
		decision.Allowed = false
		if decision.Layer == "" || res.RetryAfter > decision.RetryAfter {
			decision.RetryAfter = res.RetryAfter
			decision.Layer = l.rules[i].Layer
		}
	}

	if !decision.Allowed {
		metrics.RateLimitDenials.WithLabelValues(l.name, string(decision.Layer)).Inc()
		if l.alerts != nil {
			l.alerts.Notify(alert.SeverityWarning, "rate_limit_exceeded", fmt.Sprintf("%s limiter denied request on %s layer", l.name, decision.Layer), map[string]any{
				"limiter":             l.name,
				"path":                keys.Path,
				"user":                keys.User,
				"ip":                  keys.IP,
				"layer":               string(decision.Layer),
				"retry_after_seconds": RetryAfterSeconds(decision),
			})
		}
	}
	return decision, nil
}

// RetryAfterSeconds rounds the retry hint up to whole seconds, at least 1 on deny.
func RetryAfterSeconds(d Decision) int64 {
	if d.Allowed {
		return 0
	}
	secs := int64(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
