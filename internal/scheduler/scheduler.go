// Package scheduler is the recurring publishing engine: a periodic poll
// over the rule store that fires due rules through the generate-then-
// publish pipeline and re-arms them one cycle ahead.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pressline/pressline/internal/config"
	"github.com/pressline/pressline/internal/metrics"
	"github.com/pressline/pressline/internal/pipeline"
	"github.com/pressline/pressline/internal/recurrence"
)

// Pipeline is the per-topic generate-and-publish collaborator. The
// concrete implementation lives in the pipeline package; tests supply
// fakes.
type Pipeline interface {
	Run(ctx context.Context, topic string) (*pipeline.PostRef, error)
}

// Scheduler polls the store for due rules and processes them.
type Scheduler struct {
	store    *Store
	pipe     Pipeline
	cfg      config.SchedulerConfig
	now      func() time.Time
	interval chan time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewScheduler creates a new scheduler. The zero values in cfg are
// replaced with defaults so a partially populated config stays usable.
func NewScheduler(store *Store, pipe Pipeline, cfg config.SchedulerConfig) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = config.DefaultPollInterval
	}
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = config.DefaultClaimTimeout
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = config.DefaultBatchLimit
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = config.DefaultMaxConcurrent
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		store:    store,
		pipe:     pipe,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		interval: make(chan time.Duration, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetPollInterval adjusts the running poll loop's interval. Intervals
// under one second are ignored.
func (s *Scheduler) SetPollInterval(d time.Duration) {
	if d < time.Second {
		return
	}
	select {
	case s.interval <- d:
	default:
	}
}

// Start begins background processing.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.pollLoop(s.ctx, s.cfg.PollInterval)

	log.Info().
		Dur("poll_interval", s.cfg.PollInterval).
		Int("max_concurrent", s.cfg.MaxConcurrent).
		Msg("Scheduler started")
}

// Stop cancels the periodic timer and waits for in-flight rule
// processing to complete and persist its outcome. Cancellation only
// stops new ticks; a tick already underway runs to completion so its
// claim is released and its status update is not lost.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	log.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) pollLoop(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-s.interval:
			ticker.Reset(d)
			log.Info().Dur("poll_interval", d).Msg("Poll interval updated")
		case <-ticker.C:
			// Processing gets its own context: Stop cancels ctx while a
			// tick may be mid-firing, and the Finish/Release writes must
			// still go through.
			if err := s.ProcessDue(context.Background()); err != nil {
				log.Error().Err(err).Msg("Failed to process due rules")
			}
		}
	}
}

// ProcessDue performs one tick: fetch due rules and fire each of them.
// Rules are independent aggregates, so they run concurrently up to
// MaxConcurrent; topics within a rule stay strictly sequential.
func (s *Scheduler) ProcessDue(ctx context.Context) error {
	now := s.now()

	rules, err := s.store.ListDue(ctx, s.cfg.Owner, now, s.cfg.BatchLimit)
	if err != nil {
		metrics.RecordStoreError("list_due")
		return fmt.Errorf("getting due rules: %w", err)
	}

	metrics.RecordTick(len(rules))
	if len(rules) == 0 {
		return nil
	}

	log.Debug().Int("count", len(rules)).Msg("Processing due rules")

	sem := make(chan struct{}, s.cfg.MaxConcurrent)
	var wg sync.WaitGroup

	for _, rule := range rules {
		wg.Add(1)
		sem <- struct{}{}
		go func(rule *Rule) {
			defer wg.Done()
			defer func() { <-sem }()
			s.processRule(ctx, rule, now)
		}(rule)
	}

	wg.Wait()
	return nil
}

// processRule fires one due rule: claim it, publish its topics in
// order, then persist the outcome and the next occurrence in a single
// update. A failure on any topic aborts the rest of this firing but
// never rolls back topics already published.
func (s *Scheduler) processRule(ctx context.Context, rule *Rule, now time.Time) {
	staleBefore := now.Add(-s.cfg.ClaimTimeout)
	if err := s.store.Claim(ctx, rule.ID, now, staleBefore); err != nil {
		if errors.Is(err, ErrClaimed) {
			metrics.RecordClaimConflict()
			log.Debug().
				Str("rule_id", rule.ID).
				Msg("Skipping rule claimed by an overlapping tick")
			return
		}
		metrics.RecordStoreError("claim")
		log.Error().Err(err).Str("rule_id", rule.ID).Msg("Failed to claim rule")
		return
	}

	fireErr := s.fireTopics(ctx, rule)

	next := recurrence.Next(rule.Weekdays, rule.TimeOfDay, rule.Timezone, now)

	status := StatusPending
	lastError := ""
	if fireErr != nil {
		status = StatusFailed
		lastError = fireErr.Error()
		metrics.RecordFiring("failed")
		log.Warn().
			Err(fireErr).
			Str("rule_id", rule.ID).
			Str("owner", rule.Owner).
			Time("next_attempt", next).
			Msg("Rule firing failed, deferring to next scheduled slot")
	} else {
		metrics.RecordFiring("succeeded")
		log.Info().
			Str("rule_id", rule.ID).
			Str("owner", rule.Owner).
			Int("topics", len(rule.Topics)).
			Time("next_run", next).
			Msg("Rule fired")
	}

	if err := s.store.Finish(ctx, rule.ID, status, next, lastError); err != nil {
		// The outcome is not persisted this tick; the rule stays due and
		// is retried on the next pass. Already-published topics are
		// shielded by the publication log.
		metrics.RecordStoreError("finish")
		log.Error().Err(err).Str("rule_id", rule.ID).Msg("Failed to persist rule outcome")
		if relErr := s.store.Release(ctx, rule.ID); relErr != nil {
			log.Error().Err(relErr).Str("rule_id", rule.ID).Msg("Failed to release claim")
		}
	}
}

// fireTopics runs the publishing pipeline once per topic, in array
// order. The firing's original scheduled_at serves as the cycle token:
// topics recorded under it are skipped, so a re-fired cycle cannot
// publish the same topic twice.
func (s *Scheduler) fireTopics(ctx context.Context, rule *Rule) error {
	fireToken := rule.ScheduledAt.UTC().Format(time.RFC3339)

	for i, topic := range rule.Topics {
		published, err := s.store.WasPublished(ctx, rule.ID, i, fireToken)
		if err != nil {
			metrics.RecordStoreError("was_published")
			return fmt.Errorf("topic %q: %w", topic, err)
		}
		if published {
			log.Debug().
				Str("rule_id", rule.ID).
				Str("topic", topic).
				Msg("Topic already published this cycle, skipping")
			continue
		}

		start := time.Now()
		ref, err := s.pipe.Run(ctx, topic)
		if err != nil {
			return fmt.Errorf("topic %q: %w", topic, err)
		}
		metrics.RecordTopicPublished(time.Since(start))

		pub := &Publication{
			RuleID:    rule.ID,
			Topic:     topic,
			TopicIdx:  i,
			FireToken: fireToken,
			PostID:    ref.ID,
			PostURL:   ref.URL,
		}
		if err := s.store.RecordPublication(ctx, pub); err != nil {
			// The post is live either way; losing the log row only costs
			// dedupe coverage for this topic, so log and keep going.
			metrics.RecordStoreError("record_publication")
			log.Error().
				Err(err).
				Str("rule_id", rule.ID).
				Str("topic", topic).
				Msg("Failed to record publication")
		}
	}

	return nil
}

// Store exposes the underlying rule store for management commands.
func (s *Scheduler) Store() *Store {
	return s.store
}
