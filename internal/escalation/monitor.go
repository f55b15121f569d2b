package escalation

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Monitor drives the engine: a coarse ticker re-evaluates the whole schedule
// every few seconds, and a cron job starts the new daily occurrence. Missed
// ticks are harmless because evaluation is a pure recomputation.
type Monitor struct {
	engine   *Engine
	interval time.Duration
	rollover string // "HH:MM" local wall clock

	mu     sync.Mutex
	cron   *rcron.Cron
	cancel context.CancelFunc
	stopCh chan struct{}
}

func NewMonitor(engine *Engine, interval time.Duration, rollover string) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		engine:   engine,
		interval: interval,
		rollover: rollover,
	}
}

func (m *Monitor) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	stopCh := make(chan struct{})
	m.mu.Lock()
	m.cancel = cancel
	m.stopCh = stopCh
	m.mu.Unlock()

	m.cron = rcron.New(rcron.WithSeconds())
	expr, err := rolloverExpr(m.rollover)
	if err != nil {
		cancel()
		return err
	}
	if _, err := m.cron.AddFunc(expr, func() {
		log.Printf("[monitor] daily rollover")
		if err := m.engine.StartNewOccurrence(); err != nil {
			log.Printf("[monitor] rollover failed: %v", err)
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("register rollover job: %w", err)
	}
	m.cron.Start()

	go m.tickLoop(runCtx)

	go func() {
		select {
		case <-ctx.Done():
			m.Stop()
		case <-stopCh:
			return
		}
	}()

	log.Printf("[monitor] started, tick=%s rollover=%s", m.interval, m.rollover)
	return nil
}

func (m *Monitor) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.engine.Evaluate()
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	stopCh := m.stopCh
	m.cancel = nil
	m.stopCh = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if stopCh != nil {
		close(stopCh)
	}

	if m.cron != nil {
		stopCtx := m.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
			log.Printf("[monitor] stop timeout waiting for rollover job")
		}
	}

	m.engine.Shutdown()
	log.Printf("[monitor] stopped")
}

// rolloverExpr turns "HH:MM" into a seconds-granularity cron expression.
func rolloverExpr(clock string) (string, error) {
	min, err := clockMinutes(clock)
	if err != nil {
		return "", fmt.Errorf("rollover time: %w", err)
	}
	return fmt.Sprintf("0 %d %d * * *", min%60, min/60), nil
}
