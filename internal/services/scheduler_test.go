package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() SchedulerConfig {
	return SchedulerConfig{
		Name:         "test",
		Interval:     5 * time.Millisecond,
		ErrorBackoff: 50 * time.Millisecond,
		StopTimeout:  time.Second,
	}
}

func TestSchedulerConfig_Defaults(t *testing.T) {
	s := NewScheduler(SchedulerConfig{Name: "x"}, func(context.Context) error { return nil }, nil, testLogger())
	assert.Equal(t, time.Second, s.config.Interval)
	assert.Equal(t, 5*time.Second, s.config.ErrorBackoff)
	assert.Equal(t, 5*time.Second, s.config.StopTimeout)
}

func TestScheduler_StartStop(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(fastConfig(), func(context.Context) error {
		runs.Add(1)
		return nil
	}, nil, testLogger())

	assert.False(t, s.IsRunning())
	require.True(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.False(t, s.StartedAt().IsZero())

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)

	assert.True(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.Equal(t, 0, s.ActiveUnits())

	stopped := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load(), "no cycles after stop")
	assert.GreaterOrEqual(t, s.Cycles(), int64(3))
}

func TestScheduler_DoubleStartRefused(t *testing.T) {
	s := NewScheduler(fastConfig(), func(context.Context) error { return nil }, nil, testLogger())

	require.True(t, s.Start())
	assert.False(t, s.Start())
	assert.Equal(t, 1, s.ActiveUnits())

	require.True(t, s.Stop())
	assert.True(t, s.Stop(), "stopping a stopped scheduler is a no-op")

	require.True(t, s.Start(), "restart after stop")
	assert.Equal(t, 1, s.ActiveUnits())
	s.Stop()
}

func TestScheduler_ErrorBackoff(t *testing.T) {
	var runs atomic.Int32
	cfg := fastConfig()
	cfg.ErrorBackoff = time.Hour
	s := NewScheduler(cfg, func(context.Context) error {
		runs.Add(1)
		return errors.New("exchange down")
	}, nil, testLogger())

	require.True(t, s.Start())
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load(), "second cycle waits for the backoff")
	assert.True(t, s.IsRunning(), "errors never kill the loop")
	assert.True(t, s.Stop())
}

func TestScheduler_SurvivesPanic(t *testing.T) {
	var runs atomic.Int32
	cfg := fastConfig()
	cfg.ErrorBackoff = 5 * time.Millisecond
	s := NewScheduler(cfg, func(context.Context) error {
		if runs.Add(1) == 1 {
			panic("boom")
		}
		return nil
	}, nil, testLogger())

	require.True(t, s.Start())
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	assert.True(t, s.Stop())
}

func TestScheduler_StopBounded(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	cfg := fastConfig()
	cfg.StopTimeout = 30 * time.Millisecond
	s := NewScheduler(cfg, func(context.Context) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		return nil
	}, nil, testLogger())

	require.True(t, s.Start())
	<-entered

	begin := time.Now()
	assert.False(t, s.Stop(), "cycle ignores cancellation")
	assert.Less(t, time.Since(begin), 500*time.Millisecond)
	assert.False(t, s.IsRunning())
	assert.Equal(t, 1, s.ActiveUnits(), "abandoned loop still draining")

	close(release)
	assert.Eventually(t, func() bool { return s.ActiveUnits() == 0 }, time.Second, time.Millisecond)
}

func TestScheduler_StartRefusedWhileDraining(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	cfg := fastConfig()
	cfg.StopTimeout = 20 * time.Millisecond
	s := NewScheduler(cfg, func(context.Context) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		return nil
	}, nil, testLogger())

	require.True(t, s.Start())
	<-entered
	require.False(t, s.Stop())

	assert.False(t, s.Start(), "abandoned loop has not exited")
	assert.False(t, s.IsRunning())
	assert.Equal(t, 1, s.ActiveUnits())

	close(release)
	require.Eventually(t, func() bool { return s.ActiveUnits() == 0 }, time.Second, time.Millisecond)

	require.True(t, s.Start())
	assert.Equal(t, 1, s.ActiveUnits())
	assert.True(t, s.Stop())
}

func TestScheduler_CycleSeesCancellation(t *testing.T) {
	cancelled := make(chan struct{})
	s := NewScheduler(fastConfig(), func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}, nil, testLogger())

	require.True(t, s.Start())
	time.Sleep(10 * time.Millisecond)
	assert.True(t, s.Stop())
	<-cancelled
}
