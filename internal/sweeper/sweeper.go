// Package sweeper runs the periodic cleanup of expired sessions and ephemeral
// tokens. The conditional-update queries already treat expired rows as dead;
// the sweeper keeps the partial indexes small and the listing queries honest.
package sweeper

import (
	"context"
	"log"
	"time"
)

// SessionSweeper marks expired sessions inactive.
type SessionSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// TokenSweeper marks expired ephemeral tokens used.
type TokenSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically invokes both sweeps.
type Sweeper struct {
	sessions SessionSweeper
	tokens   TokenSweeper
	interval time.Duration
}

// New returns a Sweeper. interval must be positive.
func New(sessions SessionSweeper, tokens TokenSweeper, interval time.Duration) *Sweeper {
	return &Sweeper{sessions: sessions, tokens: tokens, interval: interval}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if s.sessions != nil {
		if n, err := s.sessions.SweepExpired(ctx); err != nil {
			log.Printf("sweeper: sessions: %v", err)
		} else if n > 0 {
			log.Printf("sweeper: expired %d sessions", n)
		}
	}
	if s.tokens != nil {
		if n, err := s.tokens.SweepExpired(ctx); err != nil {
			log.Printf("sweeper: tokens: %v", err)
		} else if n > 0 {
			log.Printf("sweeper: expired %d tokens", n)
		}
	}
}
