package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressline/pressline/internal/config"
	"github.com/pressline/pressline/internal/database"
	"github.com/pressline/pressline/internal/recurrence"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.Open(&config.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		WALMode:      true,
		ForeignKeys:  true,
		BusyTimeout:  config.DefaultBusyTimeout,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewStore(db)
}

func testRule(owner string, topics ...string) *Rule {
	if len(topics) == 0 {
		topics = []string{"coffee brewing"}
	}
	return &Rule{
		Owner:     owner,
		Topics:    topics,
		TimeOfDay: "09:00",
		Weekdays:  recurrence.NewWeekdaySet(time.Monday, time.Thursday),
		Timezone:  "UTC",
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rule := testRule("alice", "espresso", "pour over")
	require.NoError(t, store.Create(ctx, rule))
	require.NotEmpty(t, rule.ID)
	assert.False(t, rule.ScheduledAt.IsZero(), "creation should arm the first occurrence")

	got, err := store.Get(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, rule.Owner, got.Owner)
	assert.Equal(t, []string{"espresso", "pour over"}, got.Topics)
	assert.Equal(t, "09:00", got.TimeOfDay)
	assert.True(t, got.Weekdays.Contains(time.Monday))
	assert.True(t, got.Weekdays.Contains(time.Thursday))
	assert.Equal(t, StatusPending, got.Status)
	assert.Empty(t, got.LastError)
	assert.Nil(t, got.ClaimedAt)
	assert.Equal(t, rule.ScheduledAt.Unix(), got.ScheduledAt.Unix())
}

func TestStore_CreateValidation(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*Rule)
	}{
		{"empty owner", func(r *Rule) { r.Owner = "" }},
		{"no topics", func(r *Rule) { r.Topics = nil }},
		{"blank topic", func(r *Rule) { r.Topics = []string{"ok", "  "} }},
		{"bad time", func(r *Rule) { r.TimeOfDay = "25:00" }},
		{"empty weekdays", func(r *Rule) { r.Weekdays = 0 }},
		{"bad timezone", func(r *Rule) { r.Timezone = "Mars/Olympus" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := testRule("alice")
			tt.mutate(rule)
			assert.Error(t, store.Create(ctx, rule))
		})
	}
}

func TestStore_GetNotFound(t *testing.T) {
	store := testStore(t)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Delete(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rule := testRule("alice")
	require.NoError(t, store.Create(ctx, rule))
	require.NoError(t, store.Delete(ctx, rule.ID))

	_, err := store.Get(ctx, rule.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, rule.ID), ErrNotFound)
}

func TestStore_ListByOwner(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for _, owner := range []string{"alice", "alice", "bob"} {
		require.NoError(t, store.Create(ctx, testRule(owner)))
	}

	rules, err := store.ListByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_ListDue(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

	overdue := testRule("alice")
	overdue.ScheduledAt = now.Add(-time.Hour)
	require.NoError(t, store.Create(ctx, overdue))

	failedOverdue := testRule("alice")
	failedOverdue.ScheduledAt = now.Add(-2 * time.Hour)
	failedOverdue.Status = StatusFailed
	failedOverdue.LastError = "generation timed out"
	require.NoError(t, store.Create(ctx, failedOverdue))

	future := testRule("alice")
	future.ScheduledAt = now.Add(time.Hour)
	require.NoError(t, store.Create(ctx, future))

	otherOwner := testRule("bob")
	otherOwner.ScheduledAt = now.Add(-time.Minute)
	require.NoError(t, store.Create(ctx, otherOwner))

	due, err := store.ListDue(ctx, "", now, 100)
	require.NoError(t, err)
	require.Len(t, due, 3, "due query must include failed rules and exclude future ones")
	assert.Equal(t, failedOverdue.ID, due[0].ID, "earliest scheduled_at first")

	aliceDue, err := store.ListDue(ctx, "alice", now, 100)
	require.NoError(t, err)
	assert.Len(t, aliceDue, 2)

	limited, err := store.ListDue(ctx, "", now, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStore_ListDue_ExactBoundary(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	rule := testRule("alice")
	rule.ScheduledAt = now
	require.NoError(t, store.Create(ctx, rule))

	due, err := store.ListDue(ctx, "", now, 100)
	require.NoError(t, err)
	assert.Len(t, due, 1, "a rule scheduled exactly at now is due")
}

func TestStore_Claim(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	staleBefore := now.Add(-5 * time.Minute)

	rule := testRule("alice")
	require.NoError(t, store.Create(ctx, rule))

	require.NoError(t, store.Claim(ctx, rule.ID, now, staleBefore))

	err := store.Claim(ctx, rule.ID, now.Add(time.Second), staleBefore)
	assert.ErrorIs(t, err, ErrClaimed, "a fresh claim must block overlapping ticks")

	require.NoError(t, store.Release(ctx, rule.ID))
	assert.NoError(t, store.Claim(ctx, rule.ID, now, staleBefore))
}

func TestStore_Claim_StaleOverwritten(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rule := testRule("alice")
	require.NoError(t, store.Create(ctx, rule))

	// Claim from a run ten minutes ago; with a five minute timeout it is
	// stale and a new tick may take the rule over.
	require.NoError(t, store.Claim(ctx, rule.ID, now.Add(-10*time.Minute), now.Add(-15*time.Minute)))

	err := store.Claim(ctx, rule.ID, now, now.Add(-5*time.Minute))
	assert.NoError(t, err)
}

func TestStore_ReleaseStaleClaims(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := testRule("alice")
	require.NoError(t, store.Create(ctx, stale))
	require.NoError(t, store.Claim(ctx, stale.ID, now.Add(-10*time.Minute), now.Add(-time.Hour)))

	fresh := testRule("alice")
	require.NoError(t, store.Create(ctx, fresh))
	require.NoError(t, store.Claim(ctx, fresh.ID, now, now.Add(-5*time.Minute)))

	released, err := store.ReleaseStaleClaims(ctx, now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	got, err := store.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ClaimedAt)

	got, err = store.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.ClaimedAt)
}

func TestStore_Finish(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rule := testRule("alice")
	require.NoError(t, store.Create(ctx, rule))
	require.NoError(t, store.Claim(ctx, rule.ID, now, now.Add(-5*time.Minute)))

	next := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.Finish(ctx, rule.ID, StatusFailed, next, "publish returned 503"))

	got, err := store.Get(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "publish returned 503", got.LastError)
	assert.Equal(t, next.Unix(), got.ScheduledAt.Unix())
	assert.Nil(t, got.ClaimedAt, "finishing releases the claim")

	// A later success clears the error.
	require.NoError(t, store.Finish(ctx, rule.ID, StatusPending, next.AddDate(0, 0, 7), ""))

	got, err = store.Get(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Empty(t, got.LastError)
}

func TestStore_Publications(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rule := testRule("alice", "espresso", "pour over")
	require.NoError(t, store.Create(ctx, rule))

	token := rule.ScheduledAt.UTC().Format(time.RFC3339)

	published, err := store.WasPublished(ctx, rule.ID, 0, token)
	require.NoError(t, err)
	assert.False(t, published)

	pub := &Publication{
		RuleID:    rule.ID,
		Topic:     "espresso",
		TopicIdx:  0,
		FireToken: token,
		PostID:    "101",
		PostURL:   "https://blog.example.com/?p=101",
	}
	require.NoError(t, store.RecordPublication(ctx, pub))

	published, err = store.WasPublished(ctx, rule.ID, 0, token)
	require.NoError(t, err)
	assert.True(t, published)

	// Same topic, same cycle: the log's uniqueness constraint rejects it.
	dup := *pub
	err = store.RecordPublication(ctx, &dup)
	assert.True(t, database.IsUniqueError(err))

	// Same topic in a later cycle is fine.
	nextCycle := *pub
	nextCycle.FireToken = rule.ScheduledAt.AddDate(0, 0, 7).UTC().Format(time.RFC3339)
	assert.NoError(t, store.RecordPublication(ctx, &nextCycle))

	pubs, err := store.ListPublications(ctx, rule.ID)
	require.NoError(t, err)
	assert.Len(t, pubs, 2)
}

func TestStore_PrunePublications(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rule := testRule("alice")
	require.NoError(t, store.Create(ctx, rule))

	old := &Publication{
		RuleID:      rule.ID,
		Topic:       "coffee brewing",
		TopicIdx:    0,
		FireToken:   "2023-01-02T09:00:00Z",
		PostID:      "1",
		PublishedAt: now.AddDate(0, 0, -120),
	}
	require.NoError(t, store.RecordPublication(ctx, old))

	recent := &Publication{
		RuleID:      rule.ID,
		Topic:       "coffee brewing",
		TopicIdx:    0,
		FireToken:   rule.ScheduledAt.UTC().Format(time.RFC3339),
		PostID:      "2",
		PublishedAt: now.AddDate(0, 0, -1),
	}
	require.NoError(t, store.RecordPublication(ctx, recent))

	pruned, err := store.PrunePublications(ctx, now.AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	pubs, err := store.ListPublications(ctx, rule.ID)
	require.NoError(t, err)
	require.Len(t, pubs, 1)
	assert.Equal(t, "2", pubs[0].PostID)
}

func TestStore_DeleteCascadesPublications(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	rule := testRule("alice")
	require.NoError(t, store.Create(ctx, rule))
	require.NoError(t, store.RecordPublication(ctx, &Publication{
		RuleID:    rule.ID,
		Topic:     "coffee brewing",
		TopicIdx:  0,
		FireToken: rule.ScheduledAt.UTC().Format(time.RFC3339),
		PostID:    "1",
	}))

	require.NoError(t, store.Delete(ctx, rule.ID))

	pubs, err := store.ListPublications(ctx, rule.ID)
	require.NoError(t, err)
	assert.Empty(t, pubs)
}
