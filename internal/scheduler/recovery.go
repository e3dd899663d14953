package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// RecoverStaleClaims releases claims left behind by a previous process
// that crashed mid-firing. Run once at startup, before the poll loop
// begins; the affected rules are still due and fire on the first tick.
func (s *Scheduler) RecoverStaleClaims(ctx context.Context) error {
	now := s.now()
	staleBefore := now.Add(-s.cfg.ClaimTimeout)

	released, err := s.store.ReleaseStaleClaims(ctx, staleBefore)
	if err != nil {
		return fmt.Errorf("recovering stale claims: %w", err)
	}

	if released > 0 {
		log.Warn().
			Int64("count", released).
			Msg("Released stale claims from a previous run")
	}

	due, err := s.store.ListDue(ctx, s.cfg.Owner, now, s.cfg.BatchLimit)
	if err != nil {
		return fmt.Errorf("counting overdue rules: %w", err)
	}
	if len(due) > 0 {
		log.Info().
			Int("count", len(due)).
			Msg("Overdue rules will fire on the first tick")
	}

	return nil
}
