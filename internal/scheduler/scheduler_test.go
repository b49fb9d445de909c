package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto-trader/internal/strategy/engine"
	"auto-trader/pkg/types"
)

type countingEvaluator struct {
	calls atomic.Int32
}

func (c *countingEvaluator) EvaluateAll(context.Context) []engine.Result {
	c.calls.Add(1)
	return []engine.Result{{Symbol: "TCS"}}
}

type staticStats struct{}

func (staticStats) Stats(context.Context) map[string]interface{} {
	return map[string]interface{}{"redis_enabled": false}
}

func TestNewScheduler_RejectsBadCron(t *testing.T) {
	_, err := NewScheduler(context.Background(), &countingEvaluator{}, nil, types.ScheduleConfig{Cron: "30 16 * * 1-5"})
	assert.Error(t, err)
}

func TestScheduler_RunNow(t *testing.T) {
	ev := &countingEvaluator{}
	s, err := NewScheduler(context.Background(), ev, staticStats{}, types.ScheduleConfig{Cron: "0 30 16 * * 1-5"})
	require.NoError(t, err)

	results := s.RunNow()
	require.Len(t, results, 1)
	assert.Equal(t, int32(1), ev.calls.Load())

	next := s.NextRun()
	assert.Equal(t, 16, next.Hour())
	assert.Equal(t, 30, next.Minute())
	assert.NotEqual(t, time.Saturday, next.Weekday())
	assert.NotEqual(t, time.Sunday, next.Weekday())
}

func TestScheduler_FiresOnSchedule(t *testing.T) {
	ev := &countingEvaluator{}
	s, err := NewScheduler(context.Background(), ev, nil, types.ScheduleConfig{Cron: "* * * * * *", RunOnStart: true})
	require.NoError(t, err)

	s.Start()
	assert.Eventually(t, func() bool { return ev.calls.Load() >= 2 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}

func TestScheduler_SkipsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ev := &countingEvaluator{}
	s, err := NewScheduler(ctx, ev, nil, types.ScheduleConfig{Cron: "0 30 16 * * 1-5"})
	require.NoError(t, err)

	cancel()
	assert.Nil(t, s.RunNow())
	assert.Equal(t, int32(0), ev.calls.Load())
}

type blockingEvaluator struct {
	started  chan struct{}
	release  chan struct{}
	finished atomic.Bool
}

func (b *blockingEvaluator) EvaluateAll(context.Context) []engine.Result {
	close(b.started)
	<-b.release
	b.finished.Store(true)
	return nil
}

func TestScheduler_StopWaitsForStartupRun(t *testing.T) {
	ev := &blockingEvaluator{started: make(chan struct{}), release: make(chan struct{})}
	s, err := NewScheduler(context.Background(), ev, nil, types.ScheduleConfig{Cron: "0 30 16 * * 1-5", RunOnStart: true})
	require.NoError(t, err)

	s.Start()
	select {
	case <-ev.started:
	case <-time.After(3 * time.Second):
		t.Fatal("启动评估未执行")
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		close(ev.release)
	}()
	s.Stop()
	assert.True(t, ev.finished.Load())
}
