package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Polling metrics
	Fetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordtracker_fetches_total",
			Help: "Total number of upstream activity fetches",
		},
		[]string{"feed", "status"}, // status: success|error
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ordtracker_cycle_duration_seconds",
			Help:    "Polling cycle duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// Notification metrics
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordtracker_notifications_total",
			Help: "Total number of wallet notifications emitted",
		},
		[]string{"category", "direction"},
	)

	NotifyErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ordtracker_notify_errors_total",
			Help: "Total number of notifications the sink failed to deliver",
		},
	)

	DedupSkips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ordtracker_dedup_skips_total",
			Help: "Records skipped because their id was already notified",
		},
	)

	// Mint tracker metrics
	MintAnnouncements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordtracker_mint_announcements_total",
			Help: "Total number of mint threshold announcements",
		},
		[]string{"threshold"},
	)

	// Storage metrics
	PersistFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordtracker_persist_failures_total",
			Help: "Total number of failed state saves",
		},
		[]string{"document"}, // document: tracking|mint
	)
)

var initOnce sync.Once

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(Fetches)
		prometheus.MustRegister(CycleDuration)
		prometheus.MustRegister(Notifications)
		prometheus.MustRegister(NotifyErrors)
		prometheus.MustRegister(DedupSkips)
		prometheus.MustRegister(MintAnnouncements)
		prometheus.MustRegister(PersistFailures)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordFetch(feed string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	Fetches.WithLabelValues(feed, status).Inc()
}

func RecordCycle(duration time.Duration) {
	CycleDuration.Observe(duration.Seconds())
}

func RecordNotification(category, direction string) {
	Notifications.WithLabelValues(category, direction).Inc()
}
