package jobqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TeamPay/internal/pkg/cache"
	"github.com/ManuelReschke/TeamPay/internal/pkg/env"
	"github.com/ManuelReschke/TeamPay/internal/pkg/membership"
	"github.com/ManuelReschke/TeamPay/internal/pkg/metrics"
)

type fakeSweeper struct {
	mu    sync.Mutex
	calls []time.Time
	res   membership.SweepResult
	err   error
}

func (f *fakeSweeper) Sweep(_ context.Context, now time.Time) (membership.SweepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, now)
	return f.res, f.err
}

func (f *fakeSweeper) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestManager_TriggerSweepRunsWithReferenceTime(t *testing.T) {
	_, client := newTestRedis(t)
	sweeper := &fakeSweeper{res: membership.SweepResult{Scanned: 4, Due: 1}}
	collector := metrics.NewCollector()
	m := NewManager(client, sweeper, ManagerConfig{Workers: 1}, collector)
	ctx := context.Background()

	ref := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	job, err := m.TriggerSweep(ctx, ref, TriggerAdmin)
	require.NoError(t, err)
	assert.Equal(t, JobTypeMembershipSweep, job.Type)

	processed, err := m.GetQueue().ProcessNext(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	require.Equal(t, 1, sweeper.callCount())
	assert.True(t, sweeper.calls[0].Equal(ref))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.QueueJobs.WithLabelValues(string(JobTypeMembershipSweep), "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.SweepTransitions.WithLabelValues("due")))

	exists, err := client.Exists(ctx, SweepLockKey).Result()
	require.NoError(t, err)
	assert.Zero(t, exists, "lock must be released after the sweep")
}

func TestManager_SkipsWhileAnotherSweepHoldsTheLock(t *testing.T) {
	_, client := newTestRedis(t)
	sweeper := &fakeSweeper{}
	m := NewManager(client, sweeper, ManagerConfig{Workers: 1}, nil)
	ctx := context.Background()

	ok, err := cache.TryLock(ctx, client, SweepLockKey, "other-instance", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = m.TriggerSweep(ctx, time.Now(), TriggerSchedule)
	require.NoError(t, err)
	_, err = m.GetQueue().ProcessNext(ctx)
	require.NoError(t, err)

	assert.Zero(t, sweeper.callCount())
	holder, err := client.Get(ctx, SweepLockKey).Result()
	require.NoError(t, err)
	assert.Equal(t, "other-instance", holder)
}

func TestManager_FailedSweepIsRetried(t *testing.T) {
	_, client := newTestRedis(t)
	sweeper := &fakeSweeper{err: errors.New("db down")}
	m := NewManager(client, sweeper, ManagerConfig{Workers: 1}, nil)
	m.GetQueue().retryDelay = time.Hour
	ctx := context.Background()

	job, err := m.TriggerSweep(ctx, time.Now(), TriggerAdmin)
	require.NoError(t, err)
	_, err = m.GetQueue().ProcessNext(ctx)
	require.NoError(t, err)

	stored, err := m.GetQueue().GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusRetrying, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
}

func TestManager_TickerEnqueuesSweeps(t *testing.T) {
	_, client := newTestRedis(t)
	sweeper := &fakeSweeper{}
	m := NewManager(client, sweeper, ManagerConfig{Workers: 1, SweepInterval: 20 * time.Millisecond}, nil)

	assert.False(t, m.IsRunning())
	m.Start()
	m.Start()
	assert.True(t, m.IsRunning())

	assert.True(t, waitForCondition(func() bool { return sweeper.callCount() >= 2 }, 5*time.Second))

	m.Stop()
	assert.False(t, m.IsRunning())
	m.Stop()
}

func TestManagerConfigFromEnv(t *testing.T) {
	env.Env = map[string]string{"SWEEP_INTERVAL_MINUTES": "15", "JOBQUEUE_WORKERS": "4"}
	t.Cleanup(func() { env.Env = nil })

	cfg := ManagerConfigFromEnv()
	assert.Equal(t, 15*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 4, cfg.Workers)

	env.Env = map[string]string{"SWEEP_INTERVAL_MINUTES": "0"}
	assert.Equal(t, time.Hour, ManagerConfigFromEnv().SweepInterval)
}

func TestSweepJobPayloadFromMap(t *testing.T) {
	ref := time.Date(2024, 2, 29, 23, 59, 59, 0, time.FixedZone("CET", 3600))
	payload, err := SweepJobPayloadFromMap(SweepJobPayload{ReferenceTime: ref, Trigger: TriggerAdmin}.ToMap())
	require.NoError(t, err)
	assert.True(t, payload.ReferenceTime.Equal(ref))
	assert.Equal(t, TriggerAdmin, payload.Trigger)
}
