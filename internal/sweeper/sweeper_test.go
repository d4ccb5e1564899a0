package sweeper

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	calls atomic.Int64
}

func (c *countingSweeper) Sweep(ctx context.Context) (int64, error) {
	c.calls.Add(1)
	return 2, nil
}

func TestRun_SweepsImmediatelyAndStopsOnCancel(t *testing.T) {
	svc := &countingSweeper{}
	s := New(svc, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// The first sweep runs before the first tick.
	assert.Eventually(t, func() bool {
		return svc.calls.Load() >= 1
	}, time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestRun_SweepsOnEveryTick(t *testing.T) {
	svc := &countingSweeper{}
	s := New(svc, 20*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = s.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return svc.calls.Load() >= 3
	}, time.Second, 10*time.Millisecond)
}
