package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/TeamPay/internal/pkg/cache"
	"github.com/ManuelReschke/TeamPay/internal/pkg/env"
	"github.com/ManuelReschke/TeamPay/internal/pkg/membership"
	"github.com/ManuelReschke/TeamPay/internal/pkg/metrics"
)

// SweepLockKey guards against two sweep jobs running at the same time.
const SweepLockKey = "lock:membership_sweep"

// Sweeper runs one status sweep.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (membership.SweepResult, error)
}

// ManagerConfig holds the worker count and the periodic sweep interval.
type ManagerConfig struct {
	Workers       int
	SweepInterval time.Duration
	// SweepLockTTL bounds how long a crashed sweep can block the next one.
	SweepLockTTL time.Duration
}

// ManagerConfigFromEnv reads JOBQUEUE_WORKERS and SWEEP_INTERVAL_MINUTES.
func ManagerConfigFromEnv() ManagerConfig {
	minutes := env.GetEnvInt("SWEEP_INTERVAL_MINUTES", 60)
	if minutes <= 0 {
		minutes = 60
	}
	return ManagerConfig{
		Workers:       env.GetEnvInt("JOBQUEUE_WORKERS", 2),
		SweepInterval: time.Duration(minutes) * time.Minute,
		SweepLockTTL:  30 * time.Minute,
	}
}

// Manager owns the job queue and the periodic sweep trigger
type Manager struct {
	queue   *Queue
	client  *redis.Client
	sweeper Sweeper
	metrics *metrics.Collector
	cfg     ManagerConfig
	now     func() time.Time

	sweepTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

// NewManager creates a manager and registers the sweep job handler.
func NewManager(client *redis.Client, sweeper Sweeper, cfg ManagerConfig, m *metrics.Collector) *Manager {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}
	if cfg.SweepLockTTL <= 0 {
		cfg.SweepLockTTL = 30 * time.Minute
	}
	mgr := &Manager{
		queue:   NewQueue(client, cfg.Workers),
		client:  client,
		sweeper: sweeper,
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	mgr.queue.Register(JobTypeMembershipSweep, mgr.processSweepJob)
	return mgr
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and the sweep ticker
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	m.sweepTicker = time.NewTicker(m.cfg.SweepInterval)
	m.wg.Add(1)
	go m.sweepWorker()

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the sweep ticker and the job queue
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")
	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}
	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.queue.Stop()
	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) sweepWorker() {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started sweep scheduler (interval: %s)", m.cfg.SweepInterval)

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Sweep scheduler stopping")
			return
		case <-m.sweepTicker.C:
			if _, err := m.TriggerSweep(context.Background(), m.now(), TriggerSchedule); err != nil {
				log.Errorf("[JobQueue Manager] Could not enqueue sweep: %v", err)
			}
		}
	}
}

// TriggerSweep enqueues a sweep evaluated against now.
func (m *Manager) TriggerSweep(ctx context.Context, now time.Time, trigger string) (*Job, error) {
	return m.queue.EnqueueJob(ctx, JobTypeMembershipSweep, SweepJobPayload{
		ReferenceTime: now.UTC(),
		Trigger:       trigger,
	}.ToMap())
}

func (m *Manager) processSweepJob(ctx context.Context, job *Job) error {
	payload, err := SweepJobPayloadFromMap(job.Payload)
	if err != nil {
		m.metrics.JobResult(string(job.Type), "invalid")
		return fmt.Errorf("invalid sweep payload: %w", err)
	}
	if payload.ReferenceTime.IsZero() {
		payload.ReferenceTime = m.now()
	}

	token := uuid.NewString()
	locked, err := cache.TryLock(ctx, m.client, SweepLockKey, token, m.cfg.SweepLockTTL)
	if err != nil {
		return fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !locked {
		// Sweeps are idempotent; the running one covers this request.
		log.Infof("[JobQueue Manager] Sweep %s skipped, another sweep is running", job.ID)
		m.metrics.JobResult(string(job.Type), "skipped")
		return nil
	}
	defer func() {
		if err := cache.Unlock(context.Background(), m.client, SweepLockKey, token); err != nil {
			log.Warnf("[JobQueue Manager] Releasing sweep lock: %v", err)
		}
	}()

	started := time.Now()
	res, err := m.sweeper.Sweep(ctx, payload.ReferenceTime)
	m.metrics.ObserveSweep(res, time.Since(started), err)
	if err != nil {
		m.metrics.JobResult(string(job.Type), "failed")
		return err
	}
	m.metrics.JobResult(string(job.Type), "completed")
	log.Infof("[JobQueue Manager] Sweep %s (%s) done: scanned=%d due=%d overdue=%d superseded=%d failed=%d",
		job.ID, payload.Trigger, res.Scanned, res.Due, res.Overdue, res.Superseded, res.Failed)
	return nil
}
