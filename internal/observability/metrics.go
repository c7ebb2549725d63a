package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	reviewLockedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "performance_service",
		Subsystem: "reviews",
		Name:      "last_review_locked_timestamp_seconds",
		Help:      "Unix timestamp of the most recent review lock persisted to Postgres.",
	})
	evidenceBuiltGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "performance_service",
		Subsystem: "evidence",
		Name:      "last_evidence_built_timestamp_seconds",
		Help:      "Unix timestamp of the most recent evidence pack assembled.",
	})
)

func init() {
	prometheus.MustRegister(reviewLockedGauge, evidenceBuiltGauge)
}

// RecordReviewLocked updates the review lock watermark gauge.
func RecordReviewLocked(ts time.Time) {
	if ts.IsZero() {
		return
	}
	reviewLockedGauge.Set(float64(ts.Unix()))
}

// RecordEvidenceBuilt updates the evidence watermark gauge.
func RecordEvidenceBuilt(ts time.Time) {
	if ts.IsZero() {
		return
	}
	evidenceBuiltGauge.Set(float64(ts.Unix()))
}
