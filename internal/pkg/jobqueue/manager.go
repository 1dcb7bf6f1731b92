package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Task is a background job run on a fixed interval.
type Task struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run; zero means the interval.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Manager runs the periodic settlement background tasks
type Manager struct {
	tasks   []Task
	tickers []*time.Ticker
	stopCh  chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewManager creates a manager for the given tasks. Tasks without Run or with a
// non-positive interval are skipped.
func NewManager(tasks ...Task) *Manager {
	m := &Manager{}
	for _, t := range tasks {
		if t.Run == nil || t.Interval <= 0 {
			log.Warnf("[JobQueue Manager] Skipping task %q: missing run func or interval", t.Name)
			continue
		}
		m.tasks = append(m.tasks, t)
	}
	return m
}

// Start starts one worker per task
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	log.Info("[JobQueue Manager] Starting background tasks")

	m.tickers = m.tickers[:0]
	for _, t := range m.tasks {
		ticker := time.NewTicker(t.Interval)
		m.tickers = append(m.tickers, ticker)
		m.wg.Add(1)
		go m.worker(ctx, t, ticker, m.stopCh)
	}

	log.Infof("[JobQueue Manager] Started %d tasks", len(m.tasks))
}

// Stop stops all tickers, cancels in-flight runs and waits for the workers
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping background tasks...")

	for _, ticker := range m.tickers {
		ticker.Stop()
	}

	// Signal workers to stop
	close(m.stopCh)
	m.stopCh = nil
	m.cancel()
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	log.Info("[JobQueue Manager] Stopped successfully")
}

func (m *Manager) worker(ctx context.Context, t Task, ticker *time.Ticker, stopCh <-chan struct{}) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started %s worker (interval: %s)", t.Name, t.Interval)

	for {
		select {
		case <-stopCh:
			log.Infof("[JobQueue Manager] %s worker stopping", t.Name)
			return
		case <-ticker.C:
			if err := runOnce(ctx, t); err != nil {
				log.Errorf("[JobQueue Manager] %s error: %v", t.Name, err)
			}
		}
	}
}

func runOnce(ctx context.Context, t Task) error {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = t.Interval
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return t.Run(ctx)
}

// RunOnce runs the named task immediately, outside its schedule.
func (m *Manager) RunOnce(ctx context.Context, name string) (bool, error) {
	for _, t := range m.tasks {
		if t.Name == name {
			return true, runOnce(ctx, t)
		}
	}
	return false, nil
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// TaskNames lists the scheduled tasks in registration order
func (m *Manager) TaskNames() []string {
	names := make([]string, 0, len(m.tasks))
	for _, t := range m.tasks {
		names = append(names, t.Name)
	}
	return names
}
