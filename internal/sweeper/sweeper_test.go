package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	calls atomic.Int64
	err   error
}

func (f *fakeRegistry) Sweep(ctx context.Context, staleAfter time.Duration) (int, error) {
	f.calls.Add(1)
	return 0, f.err
}

func TestStartSweepsOnSchedule(t *testing.T) {
	reg := &fakeRegistry{}
	s := New(reg, 5*time.Millisecond, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return reg.calls.Load() >= 3
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
}

func TestSweepErrorDoesNotStopLoop(t *testing.T) {
	reg := &fakeRegistry{err: errors.New("store unavailable")}
	s := New(reg, 5*time.Millisecond, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	// The loop keeps ticking through repeated failures.
	require.Eventually(t, func() bool {
		return reg.calls.Load() >= 3
	}, time.Second, time.Millisecond)
}
