package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ticksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pressline_scheduler_ticks_total",
			Help: "Total number of scheduler ticks",
		},
	)

	dueRulesPerTick = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pressline_scheduler_due_rules",
			Help:    "Number of due rules fetched per tick",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	firingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pressline_scheduler_firings_total",
			Help: "Total number of rule firings by outcome",
		},
		[]string{"outcome"},
	)

	topicsPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pressline_topics_published_total",
			Help: "Total number of topics successfully published",
		},
	)

	topicDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pressline_topic_duration_seconds",
			Help:    "Generate-plus-publish time per topic in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	claimConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pressline_scheduler_claim_conflicts_total",
			Help: "Rules skipped because another tick already claimed them",
		},
	)

	storeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pressline_store_errors_total",
			Help: "Total number of store operation failures",
		},
		[]string{"op"},
	)

	publicationsPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pressline_publications_pruned_total",
			Help: "Publication log rows removed by retention pruning",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordTick(dueRules int) {
	ticksTotal.Inc()
	dueRulesPerTick.Observe(float64(dueRules))
}

func RecordFiring(outcome string) {
	firingsTotal.WithLabelValues(outcome).Inc()
}

func RecordTopicPublished(duration time.Duration) {
	topicsPublishedTotal.Inc()
	topicDuration.Observe(duration.Seconds())
}

func RecordClaimConflict() {
	claimConflictsTotal.Inc()
}

func RecordStoreError(op string) {
	storeErrorsTotal.WithLabelValues(op).Inc()
}

func RecordPublicationsPruned(count int64) {
	publicationsPrunedTotal.Add(float64(count))
}
