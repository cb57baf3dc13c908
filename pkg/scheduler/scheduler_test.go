package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAddInvalidSpec(t *testing.T) {
	s := New(zap.NewNop().Sugar())
	err := s.Add("refresh", "every minute please", func(context.Context) error { return nil })
	require.Error(t, err)
}

func TestRunExecutesJobs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := New(zap.New(core).Sugar())

	var ok, failed atomic.Int32
	require.NoError(t, s.Add("ok", "@every 1s", func(ctx context.Context) error {
		ok.Add(1)
		return nil
	}))
	require.NoError(t, s.Add("failing", "@every 1s", func(ctx context.Context) error {
		failed.Add(1)
		return errors.New("backend gone")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return ok.Load() > 0 && failed.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	assert.NotZero(t, logs.FilterMessage("Scheduled job failed").FilterField(zap.String("job", "failing")).Len())
}
