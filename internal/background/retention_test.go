package background_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BradenHooton/authgate/internal/background"
	"github.com/BradenHooton/authgate/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	calls    atomic.Int32
	deleted  int64
	err      error
	deadline bool
}

func (f *fakePurger) PurgeExpired(ctx context.Context) (int64, error) {
	f.calls.Add(1)
	_, f.deadline = ctx.Deadline()
	return f.deleted, f.err
}

type fakePruner struct{ calls int }

func (f *fakePruner) Prune() int {
	f.calls++
	return 1
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRetentionSweeper_RunOnce(t *testing.T) {
	purger := &fakePurger{deleted: 12}
	pruner := &fakePruner{}
	m := metrics.New()
	rs := background.NewRetentionSweeper(purger, quietLogger(), m, time.Hour, time.Second, pruner)

	rs.RunOnce(context.Background())

	assert.Equal(t, int32(1), purger.calls.Load())
	assert.True(t, purger.deadline, "sweep should run under a timeout")
	assert.Equal(t, 1, pruner.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepRunsTotal.WithLabelValues("success")))
}

func TestRetentionSweeper_RunOnce_ErrorSkipsPruners(t *testing.T) {
	purger := &fakePurger{err: errors.New("db down")}
	pruner := &fakePruner{}
	m := metrics.New()
	rs := background.NewRetentionSweeper(purger, quietLogger(), m, time.Hour, time.Second, pruner)

	rs.RunOnce(context.Background())

	assert.Equal(t, 0, pruner.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepRunsTotal.WithLabelValues("error")))
}

func TestRetentionSweeper_StartAndStop(t *testing.T) {
	purger := &fakePurger{}
	rs := background.NewRetentionSweeper(purger, quietLogger(), nil, 10*time.Millisecond, time.Second)

	done := make(chan struct{})
	go func() {
		rs.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool { return purger.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	rs.Stop()
	rs.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestRetentionSweeper_StopsOnContextCancel(t *testing.T) {
	purger := &fakePurger{}
	rs := background.NewRetentionSweeper(purger, quietLogger(), nil, time.Hour, time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		rs.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return purger.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
}
