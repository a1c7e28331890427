package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mael-queau/roboct0-api/oauth"
)

type countingSweeper struct{ runs atomic.Int32 }

func (c *countingSweeper) RunCycle(context.Context) (oauth.SweepReport, bool) {
	c.runs.Add(1)
	return oauth.SweepReport{}, true
}

type fakePurger struct {
	calls atomic.Int32
	err   error
}

func (f *fakePurger) Purge(context.Context) (int64, error) {
	f.calls.Add(1)
	return 3, f.err
}

func TestStartRunsSweepImmediately(t *testing.T) {
	sw := &countingSweeper{}
	s := NewScheduler(sw, &fakePurger{}, Config{})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return sw.runs.Load() >= 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, DefaultSweepInterval, s.cfg.SweepInterval)
	assert.Equal(t, DefaultPurgeInterval, s.cfg.PurgeInterval)
	assert.Len(t, s.cron.Entries(), 2)
}

// blockingSweeper holds its cycle open until the context is cancelled.
type blockingSweeper struct {
	started  chan struct{}
	finished atomic.Bool
}

func (b *blockingSweeper) RunCycle(ctx context.Context) (oauth.SweepReport, bool) {
	close(b.started)
	<-ctx.Done()
	time.Sleep(20 * time.Millisecond)
	b.finished.Store(true)
	return oauth.SweepReport{}, true
}

func TestStopWaitsForStartupSweep(t *testing.T) {
	sw := &blockingSweeper{started: make(chan struct{})}
	s := NewScheduler(sw, nil, Config{})
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-sw.started:
	case <-time.After(time.Second):
		t.Fatal("startup sweep did not run")
	}
	s.Stop()
	assert.True(t, sw.finished.Load(), "Stop returned before the startup sweep finished")
}

func TestPurgeStates(t *testing.T) {
	p := &fakePurger{}
	s := NewScheduler(nil, p, Config{})
	s.PurgeStates()
	assert.Equal(t, int32(1), p.calls.Load())

	p.err = errors.New("db down")
	s.PurgeStates()
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestEvery(t *testing.T) {
	assert.Equal(t, "@every 1h0m0s", every(time.Hour))
}
