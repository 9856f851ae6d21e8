package scheduler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/fitvox/FitVox/app/repository"
	"github.com/fitvox/FitVox/internal/pkg/billing"
	"github.com/fitvox/FitVox/internal/pkg/cache"
	"github.com/fitvox/FitVox/internal/pkg/env"
	"github.com/fitvox/FitVox/internal/pkg/mail"
	"github.com/fitvox/FitVox/internal/pkg/metrics/counter"
	"github.com/gofiber/fiber/v2/log"
)

const (
	sweepLockKey = "fitvox:lock:renewal_sweep"
	sweepLockTTL = 10 * time.Minute

	counterFlushInterval = 5 * time.Minute
)

// Manager runs the periodic renewal sweep in the background. Multiple app
// instances may start a manager; the redis lock makes sure only one of them
// executes a given sweep tick.
type Manager struct {
	sweeper     *billing.Sweeper
	sweepTicker *time.Ticker
	flushTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global scheduler manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// StartRenewalSweep builds the billing stack on top of the global
// repositories and starts the background sweep. Called once from main after
// the repository factory is initialized.
func StartRenewalSweep() {
	repos := repository.GetGlobalRepositories()
	lifecycle := billing.NewLifecycle(repos, func(email, subject, body string) {
		if email == "" {
			return
		}
		go func() {
			if err := mail.SendMail(email, subject, body); err != nil {
				log.Warnf("[Scheduler] notification to %s failed: %v", email, err)
			}
		}()
	})
	reconciler := billing.NewReconciler(repos, billing.NewProviderClientFromEnv(), lifecycle)

	m := GetManager()
	m.SetSweeper(billing.NewSweeper(repos, reconciler, lifecycle))
	m.Start()
}

// SetSweeper wires the billing sweeper the manager drives. Must be called
// before Start.
func (m *Manager) SetSweeper(s *billing.Sweeper) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeper = s
}

// Start starts the background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	if m.sweeper == nil {
		log.Error("[Scheduler] Start called without a sweeper, background sweep disabled")
		return
	}

	// Recreate stop channel for each start cycle so the manager can be
	// restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[Scheduler] Starting background tasks")

	m.sweepTicker = time.NewTicker(sweepInterval())
	m.wg.Add(1)
	go m.sweepWorker()

	m.flushTicker = time.NewTicker(counterFlushInterval)
	m.wg.Add(1)
	go m.flushWorker()

	log.Info("[Scheduler] Started successfully")
}

// Stop stops the background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Scheduler] Stopping background tasks...")

	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}
	if m.flushTicker != nil {
		m.flushTicker.Stop()
	}

	close(m.stopCh)
	m.running = false

	m.wg.Wait()

	log.Info("[Scheduler] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// RunSweepOnce exposes a manual trigger for a single renewal sweep (admin and
// CLI use). It takes the same lock as the background worker.
func (m *Manager) RunSweepOnce(ctx context.Context) (billing.SweepResult, error) {
	return m.runSweep(ctx)
}

func (m *Manager) sweepWorker() {
	defer m.wg.Done()
	log.Infof("[Scheduler] Started renewal sweep worker (interval: %s)", sweepInterval())

	for {
		select {
		case <-m.stopCh:
			log.Info("[Scheduler] Renewal sweep worker stopping")
			return
		case <-m.sweepTicker.C:
			if _, err := m.runSweep(context.Background()); err != nil {
				log.Errorf("[Scheduler] Renewal sweep error: %v", err)
			}
		}
	}
}

// flushWorker periodically drains the voice usage counters from redis into
// the database.
func (m *Manager) flushWorker() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			// Final drain so buffered counters survive a shutdown.
			if err := counter.FlushAll(); err != nil {
				log.Warnf("[Scheduler] Final counter flush failed: %v", err)
			}
			return
		case <-m.flushTicker.C:
			if err := counter.FlushAll(); err != nil {
				log.Warnf("[Scheduler] Counter flush failed: %v", err)
			}
		}
	}
}

func (m *Manager) runSweep(ctx context.Context) (billing.SweepResult, error) {
	locked, err := cache.AcquireLock(sweepLockKey, sweepLockTTL)
	if err != nil {
		// Cache down: run anyway, the sweep itself is idempotent.
		log.Warnf("[Scheduler] Sweep lock unavailable, running without it: %v", err)
	} else if !locked {
		log.Debug("[Scheduler] Renewal sweep already running elsewhere, skipping tick")
		return billing.SweepResult{}, nil
	} else {
		defer func() {
			if err := cache.ReleaseLock(sweepLockKey); err != nil {
				log.Warnf("[Scheduler] Releasing sweep lock failed: %v", err)
			}
		}()
	}

	result, err := m.sweeper.Run(ctx, time.Now())
	if err != nil {
		return result, err
	}
	log.Infof("[Scheduler] Renewal sweep done: due=%d renewed=%d expired=%d past_due=%d canceled=%d skipped=%d errors=%d",
		result.Due, result.Renewed, result.Expired, result.PastDue, result.Canceled, result.Skipped, result.Errors)
	return result, nil
}

func sweepInterval() time.Duration {
	minutes := 60
	if v := env.GetEnv("SWEEP_INTERVAL_MINUTES", ""); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			minutes = parsed
		}
	}
	return time.Duration(minutes) * time.Minute
}
