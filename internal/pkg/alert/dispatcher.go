package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/notemarket/notemarket/app/models"
	"github.com/notemarket/notemarket/internal/pkg/metrics"
)

const persistTimeout = 5 * time.Second

// Dispatcher delivers alerts to an external HTTP endpoint on a bounded worker pool.
// Notify never blocks the caller: a full queue drops the alert with a log line.
type Dispatcher struct {
	cfg    Config
	client *http.Client
	repo   Repository

	mu      sync.RWMutex
	queue   chan Alert
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a dispatcher. repo may be nil, in which case outcomes are
// only logged.
func NewDispatcher(cfg Config, repo Repository) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		cfg:    cfg,
		client: &http.Client{},
		repo:   repo,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Enabled reports whether an endpoint is configured.
func (d *Dispatcher) Enabled() bool {
	return d.cfg.URL != ""
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.queue = make(chan Alert, d.cfg.QueueSize)
	d.running = true
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, d.queue)
	}
	log.Infof("[Alert] Dispatcher started with %d workers (delivery enabled: %t)", d.cfg.Workers, d.Enabled())
}

// Stop closes the queue and waits up to DrainTimeout for queued alerts. After the
// deadline in-flight retries are abandoned and the rest of the queue is recorded
// as FAILED.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.queue)
	cancel := d.cancel
	d.mu.Unlock()
	defer cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(d.cfg.DrainTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		log.Warnf("[Alert] Drain timeout (%s) reached, failing remaining alerts", d.cfg.DrainTimeout)
		cancel()
		<-done
	}
	log.Info("[Alert] Dispatcher stopped")
}

func (d *Dispatcher) worker(ctx context.Context, queue <-chan Alert) {
	defer d.wg.Done()
	for a := range queue {
		d.Deliver(ctx, a)
	}
}

// Notify enqueues an alert for asynchronous delivery.
func (d *Dispatcher) Notify(severity Severity, event, message string, metadata map[string]any) {
	a := Alert{
		Severity:    severity,
		Event:       event,
		Message:     message,
		Metadata:    metadata,
		Timestamp:   d.now().UTC(),
		Environment: d.cfg.Environment,
	}
	if a.Metadata == nil {
		a.Metadata = map[string]any{}
	}

	if !d.Enabled() {
		log.Warnf("[Alert] %s %s: %s %v", a.Severity, a.Event, a.Message, a.Metadata)
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running {
		metrics.AlertsDropped.Inc()
		log.Errorf("[Alert] Dispatcher not running, dropped %s %s", a.Severity, a.Event)
		return
	}
	select {
	case d.queue <- a:
	default:
		metrics.AlertsDropped.Inc()
		log.Errorf("[Alert] Queue full, dropped %s %s: %s", a.Severity, a.Event, a.Message)
	}
}

func (d *Dispatcher) Critical(event, message string, metadata map[string]any) {
	d.Notify(SeverityCritical, event, message, metadata)
}

func (d *Dispatcher) High(event, message string, metadata map[string]any) {
	d.Notify(SeverityHigh, event, message, metadata)
}

func (d *Dispatcher) Warning(event, message string, metadata map[string]any) {
	d.Notify(SeverityWarning, event, message, metadata)
}

// Deliver posts the alert synchronously, retrying with exponential backoff, and
// persists the terminal outcome.
func (d *Dispatcher) Deliver(ctx context.Context, a Alert) *models.AlertRecord {
	record := &models.AlertRecord{
		Severity:    string(a.Severity),
		Event:       a.Event,
		Message:     a.Message,
		Metadata:    a.Metadata,
		Environment: a.Environment,
		Status:      models.AlertStatusFailed,
	}

	body, err := json.Marshal(a)
	if err != nil {
		record.Attempts = append(record.Attempts, models.AlertAttempt{
			Attempt: 1,
			At:      d.now().UTC(),
			Error:   fmt.Sprintf("encode alert: %v", err),
		})
		record.AttemptCount = 1
		d.finish(record)
		return record
	}

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			log.Warnf("[Alert] Delivery of %s aborted after %d attempts: %v", a.Event, attempt-1, ctx.Err())
			break
		}
		if attempt > 1 {
			if err := d.sleep(ctx, d.cfg.backoff(attempt-1)); err != nil {
				break
			}
		}

		status, err := d.post(ctx, body)
		entry := models.AlertAttempt{Attempt: attempt, At: d.now().UTC(), StatusCode: status}
		if err != nil {
			entry.Error = err.Error()
			log.Warnf("[Alert] Delivery of %s attempt %d/%d failed: %v", a.Event, attempt, d.cfg.MaxAttempts, err)
		}
		record.Attempts = append(record.Attempts, entry)
		record.AttemptCount = attempt

		if err == nil {
			record.Status = models.AlertStatusDelivered
			break
		}
	}

	d.finish(record)
	return record
}

func (d *Dispatcher) post(ctx context.Context, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("alert endpoint returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (d *Dispatcher) finish(record *models.AlertRecord) {
	metrics.AlertDeliveries.WithLabelValues(strings.ToLower(record.Status)).Inc()
	if record.Status == models.AlertStatusFailed {
		log.Errorf("[Alert] %s %s moved to dead-letter queue after %d attempts", record.Severity, record.Event, record.AttemptCount)
	}

	if d.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := d.repo.Create(ctx, record); err != nil {
		log.Errorf("[Alert] Failed to persist alert record for %s: %v", record.Event, err)
	}
}

// Stats returns delivery counters from the alert log.
func (d *Dispatcher) Stats(ctx context.Context) (*Stats, error) {
	if d.repo == nil {
		return &Stats{}, nil
	}
	return d.repo.Stats(ctx)
}

// DeadLetters lists the most recent alerts that exhausted their retries.
func (d *Dispatcher) DeadLetters(ctx context.Context, limit int) ([]models.AlertRecord, error) {
	if d.repo == nil {
		return nil, nil
	}
	return d.repo.ListFailed(ctx, limit)
}
