package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pressline/pressline/internal/database"
	"github.com/pressline/pressline/internal/recurrence"
)

var (
	// ErrNotFound is returned when no rule exists for the given ID.
	ErrNotFound = errors.New("rule not found")
	// ErrClaimed is returned when a rule is already claimed by another tick.
	ErrClaimed = errors.New("rule already claimed")
)

// Store handles database operations for rules and the publication log.
type Store struct {
	db *database.DB
}

// NewStore creates a new rule store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

const ruleColumns = `id, owner, topics, time_of_day, weekdays, timezone, scheduled_at, status, last_error, claimed_at, created_at, updated_at`

// Create inserts a new rule. Malformed recurrence fields are rejected
// here, at creation time; the processor itself stays permissive with
// whatever is already persisted.
func (s *Store) Create(ctx context.Context, rule *Rule) error {
	if err := validateRule(rule); err != nil {
		return err
	}

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.Timezone == "" {
		rule.Timezone = "UTC"
	}
	if rule.Status == "" {
		rule.Status = StatusPending
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = now
	}
	if rule.ScheduledAt.IsZero() {
		rule.ScheduledAt = recurrence.Next(rule.Weekdays, rule.TimeOfDay, rule.Timezone, now)
	}

	topicsJSON, err := json.Marshal(rule.Topics)
	if err != nil {
		return fmt.Errorf("marshaling topics: %w", err)
	}

	query := `
		INSERT INTO rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		rule.ID,
		rule.Owner,
		string(topicsJSON),
		rule.TimeOfDay,
		rule.Weekdays.String(),
		rule.Timezone,
		rule.ScheduledAt.UTC().Format(time.RFC3339),
		string(rule.Status),
		nullString(rule.LastError),
		nullTime(rule.ClaimedAt),
		rule.CreatedAt.UTC().Format(time.RFC3339),
		rule.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting rule: %w", database.ClassifyError(err))
	}

	return nil
}

func validateRule(rule *Rule) error {
	if rule.Owner == "" {
		return fmt.Errorf("rule owner must not be empty")
	}
	if len(rule.Topics) == 0 {
		return fmt.Errorf("rule must have at least one topic")
	}
	for i, topic := range rule.Topics {
		if strings.TrimSpace(topic) == "" {
			return fmt.Errorf("topic %d must not be empty", i)
		}
	}
	if _, _, err := recurrence.ParseTimeOfDay(rule.TimeOfDay); err != nil {
		return err
	}
	if rule.Weekdays.IsEmpty() {
		return fmt.Errorf("rule must select at least one weekday")
	}
	if rule.Timezone != "" {
		if _, err := time.LoadLocation(rule.Timezone); err != nil {
			return fmt.Errorf("unresolvable timezone %q", rule.Timezone)
		}
	}
	return nil
}

// Update rewrites a rule's mutable fields.
func (s *Store) Update(ctx context.Context, rule *Rule) error {
	rule.UpdatedAt = time.Now().UTC()

	topicsJSON, err := json.Marshal(rule.Topics)
	if err != nil {
		return fmt.Errorf("marshaling topics: %w", err)
	}

	query := `
		UPDATE rules
		SET topics = ?, time_of_day = ?, weekdays = ?, scheduled_at = ?, status = ?, last_error = ?, claimed_at = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		string(topicsJSON),
		rule.TimeOfDay,
		rule.Weekdays.String(),
		rule.ScheduledAt.UTC().Format(time.RFC3339),
		string(rule.Status),
		nullString(rule.LastError),
		nullTime(rule.ClaimedAt),
		rule.UpdatedAt.UTC().Format(time.RFC3339),
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("updating rule: %w", err)
	}

	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a rule and, via cascade, its publication log.
func (s *Store) Delete(ctx context.Context, ruleID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, ruleID)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Get retrieves a rule by ID.
func (s *Store) Get(ctx context.Context, ruleID string) (*Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+` FROM rules WHERE id = ?
	`, ruleID)

	rule, err := scanRule(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting rule: %w", err)
	}

	return rule, nil
}

// List retrieves all rules, oldest first.
func (s *Store) List(ctx context.Context) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+` FROM rules ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

// ListByOwner retrieves all rules belonging to one owner.
func (s *Store) ListByOwner(ctx context.Context, owner string) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+` FROM rules WHERE owner = ? ORDER BY created_at ASC
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("querying rules by owner: %w", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

// ListDue retrieves rules whose firing time has arrived. Failed rules
// are included: their scheduled_at was advanced one cycle when they
// failed, so reaching it again is the deliberate retry slot. An empty
// owner matches all owners.
func (s *Store) ListDue(ctx context.Context, owner string, now time.Time, limit int) ([]*Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM rules
		WHERE status IN (?, ?)
		  AND scheduled_at <= ?
	`
	args := []any{string(StatusPending), string(StatusFailed), now.UTC().Format(time.RFC3339)}

	if owner != "" {
		query += ` AND owner = ?`
		args = append(args, owner)
	}

	query += ` ORDER BY scheduled_at ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying due rules: %w", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

// Claim marks a rule as in-progress for this tick. A claim newer than
// staleBefore blocks new claims, which keeps overlapping ticks from
// processing the same rule; stale claims (crashed or wedged runs) are
// overwritten.
func (s *Store) Claim(ctx context.Context, ruleID string, now, staleBefore time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rules
		SET claimed_at = ?
		WHERE id = ?
		  AND (claimed_at IS NULL OR claimed_at < ?)
	`,
		now.UTC().Format(time.RFC3339),
		ruleID,
		staleBefore.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("claiming rule: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking claim result: %w", err)
	}
	if affected == 0 {
		return ErrClaimed
	}

	return nil
}

// Release clears a rule's claim without touching its other fields.
func (s *Store) Release(ctx context.Context, ruleID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE rules SET claimed_at = NULL WHERE id = ?`, ruleID)
	if err != nil {
		return fmt.Errorf("releasing claim: %w", err)
	}
	return nil
}

// ReleaseStaleClaims clears claims older than staleBefore and returns
// how many were cleared. Run at startup so a crashed process cannot
// leave rules wedged for a full claim-timeout window.
func (s *Store) ReleaseStaleClaims(ctx context.Context, staleBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rules SET claimed_at = NULL
		WHERE claimed_at IS NOT NULL AND claimed_at < ?
	`, staleBefore.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("releasing stale claims: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting released claims: %w", err)
	}

	return affected, nil
}

// Finish records a firing attempt's outcome: status, the re-derived
// scheduled_at, the error message (cleared on success), and the claim
// release, all in one logical update.
func (s *Store) Finish(ctx context.Context, ruleID string, status Status, scheduledAt time.Time, lastError string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rules
		SET status = ?, scheduled_at = ?, last_error = ?, claimed_at = NULL, updated_at = ?
		WHERE id = ?
	`,
		string(status),
		scheduledAt.UTC().Format(time.RFC3339),
		nullString(lastError),
		database.Now(),
		ruleID,
	)
	if err != nil {
		return fmt.Errorf("finishing rule: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordPublication appends a row to the publication log. A unique
// violation means the topic was already published in this cycle.
func (s *Store) RecordPublication(ctx context.Context, pub *Publication) error {
	if pub.PublishedAt.IsZero() {
		pub.PublishedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO publications (rule_id, topic, topic_idx, fire_token, post_id, post_url, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		pub.RuleID,
		pub.Topic,
		pub.TopicIdx,
		pub.FireToken,
		pub.PostID,
		pub.PostURL,
		pub.PublishedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording publication: %w", database.ClassifyError(err))
	}

	return nil
}

// WasPublished reports whether a topic was already published for the
// given firing cycle.
func (s *Store) WasPublished(ctx context.Context, ruleID string, topicIdx int, fireToken string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM publications
		WHERE rule_id = ? AND topic_idx = ? AND fire_token = ?
	`, ruleID, topicIdx, fireToken).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking publication log: %w", err)
	}
	return count > 0, nil
}

// ListPublications returns a rule's publication log, newest first.
func (s *Store) ListPublications(ctx context.Context, ruleID string) ([]*Publication, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_id, topic, topic_idx, fire_token, post_id, post_url, published_at
		FROM publications
		WHERE rule_id = ?
		ORDER BY published_at DESC, id DESC
	`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("querying publications: %w", err)
	}
	defer rows.Close()

	var pubs []*Publication
	for rows.Next() {
		var pub Publication
		var postURL sql.NullString
		var publishedAt string

		if err := rows.Scan(
			&pub.ID,
			&pub.RuleID,
			&pub.Topic,
			&pub.TopicIdx,
			&pub.FireToken,
			&pub.PostID,
			&postURL,
			&publishedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning publication row: %w", err)
		}

		pub.PostURL = postURL.String
		t, parseErr := time.Parse(time.RFC3339, publishedAt)
		if parseErr != nil {
			return nil, fmt.Errorf("parsing published_at: %w", parseErr)
		}
		pub.PublishedAt = t

		pubs = append(pubs, &pub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating publication rows: %w", err)
	}

	return pubs, nil
}

// PrunePublications deletes log rows older than cutoff and returns the
// number removed.
func (s *Store) PrunePublications(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM publications WHERE published_at < ?
	`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("pruning publications: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned publications: %w", err)
	}

	return affected, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func scanRule(scan func(dest ...any) error) (*Rule, error) {
	var rule Rule
	var topicsJSON, weekdays, status string
	var scheduledAt, createdAt, updatedAt string
	var lastError, claimedAt sql.NullString

	err := scan(
		&rule.ID,
		&rule.Owner,
		&topicsJSON,
		&rule.TimeOfDay,
		&weekdays,
		&rule.Timezone,
		&scheduledAt,
		&status,
		&lastError,
		&claimedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if unmarshalErr := json.Unmarshal([]byte(topicsJSON), &rule.Topics); unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshaling topics: %w", unmarshalErr)
	}

	set, parseErr := recurrence.ParseWeekdaySet(weekdays)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing weekdays: %w", parseErr)
	}
	rule.Weekdays = set

	rule.Status = Status(status)
	rule.LastError = lastError.String

	if claimedAt.Valid {
		t, err := time.Parse(time.RFC3339, claimedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing claimed_at: %w", err)
		}
		rule.ClaimedAt = &t
	}

	for _, field := range []struct {
		raw  string
		dest *time.Time
		name string
	}{
		{scheduledAt, &rule.ScheduledAt, "scheduled_at"},
		{createdAt, &rule.CreatedAt, "created_at"},
		{updatedAt, &rule.UpdatedAt, "updated_at"},
	} {
		t, err := time.Parse(time.RFC3339, field.raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", field.name, err)
		}
		*field.dest = t
	}

	return &rule, nil
}

func scanRules(rows *sql.Rows) ([]*Rule, error) {
	var rules []*Rule

	for rows.Next() {
		rule, err := scanRule(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning rule row: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rule rows: %w", err)
	}

	return rules, nil
}
