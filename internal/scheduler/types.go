package scheduler

import (
	"time"

	"github.com/pressline/pressline/internal/recurrence"
)

// Status is the persisted state of a rule. There is no terminal state;
// a rule cycles between pending and failed until its owner removes it.
type Status string

const (
	// StatusPending means the rule is armed and will fire at ScheduledAt.
	StatusPending Status = "pending"
	// StatusFailed means the last firing failed; the rule retries at its
	// next scheduled slot, not immediately.
	StatusFailed Status = "failed"
)

// Rule is a user-defined weekly recurrence: generate and publish one
// post per topic on the selected weekdays at the configured local time.
type Rule struct {
	ID          string                // Unique rule ID
	Owner       string                // Owning user, immutable
	Topics      []string              // One post per topic per firing, in order
	TimeOfDay   string                // Local "HH:MM"
	Weekdays    recurrence.WeekdaySet // Non-empty set of firing days
	Timezone    string                // IANA zone, immutable once created
	ScheduledAt time.Time             // Next (or most recently attempted) firing, UTC
	Status      Status                // pending or failed
	LastError   string                // Failure reason, empty unless Status is failed
	ClaimedAt   *time.Time            // Set while a tick is processing the rule
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Publication is one row of the publication log: a topic successfully
// pushed to the CMS during a specific firing cycle.
type Publication struct {
	ID          int64
	RuleID      string
	Topic       string
	TopicIdx    int
	FireToken   string // The firing's scheduled_at; identifies the cycle
	PostID      string
	PostURL     string
	PublishedAt time.Time
}
