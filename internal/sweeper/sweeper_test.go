package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingSweep struct {
	calls atomic.Int64
	err   error
}

func (c *countingSweep) SweepExpired(ctx context.Context) (int64, error) {
	c.calls.Add(1)
	return 2, c.err
}

func TestSweeper_SweepsImmediatelyAndOnTick(t *testing.T) {
	sessions := &countingSweep{}
	tokens := &countingSweep{}
	s := New(sessions, tokens, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if got := sessions.calls.Load(); got < 2 {
		t.Errorf("session sweeps = %d, want at least 2 (immediate + tick)", got)
	}
	if got := tokens.calls.Load(); got < 2 {
		t.Errorf("token sweeps = %d, want at least 2 (immediate + tick)", got)
	}
}

func TestSweeper_ContinuesAfterError(t *testing.T) {
	sessions := &countingSweep{err: errors.New("db down")}
	tokens := &countingSweep{}
	s := New(sessions, tokens, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	// Token sweep still runs even when session sweep errors
	if got := tokens.calls.Load(); got < 1 {
		t.Errorf("token sweeps = %d, want at least 1", got)
	}
}

func TestSweeper_StopsOnCancel(t *testing.T) {
	sessions := &countingSweep{}
	s := New(sessions, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
